package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
)

// ============================================================
// Reply texts (WhatsApp markdown: *bold*)
// ============================================================

const welcomeText = "👋 *¡Bienvenido al Sistema de PQRS*\n" +
	"*Universidad Los Libertadores*\n\n" +
	"Estoy aquí para ayudarte a registrar tu Petición, Queja, Reclamo o Sugerencia.\n\n" +
	"¿A qué departamento tiene que ver tu solicitud?"

const (
	invalidChoicePrefix = "❌ Opción no válida. Por favor, elige un número del 1 al 7:\n\n"
	alreadyRegistered   = "Tu PQRS ya ha sido registrada. Si necesitas crear una nueva, escribe 'nuevo' o 'reiniciar'."

	unsupportedAtStart = "Por el momento solo puedo procesar mensajes de texto. " +
		"Por favor, envía un mensaje de texto para iniciar tu PQRS."
	unsupportedMidway = "Por el momento solo puedo procesar mensajes de texto. " +
		"Por favor, continúa con texto para completar tu solicitud."
)

// confirmationDateLayout is dd/mm/yyyy HH:MM.
const confirmationDateLayout = "02/01/2006 15:04"

func departmentMenu() string {
	var b strings.Builder
	b.WriteString("Elige una opción:\n\n")
	for _, d := range domain.Departments() {
		fmt.Fprintf(&b, "*%s.* %s\n", d.Key, d.Name)
	}
	b.WriteString("\nResponde con el número o el nombre del departamento.")
	return b.String()
}

func welcomeWithMenu() string {
	return welcomeText + "\n\n" + departmentMenu()
}

func invalidChoiceText() string {
	return invalidChoicePrefix + departmentMenu()
}

func departmentSelectedText(d domain.Department) string {
	return fmt.Sprintf("✅ Perfecto. Has seleccionado: *%s*\n\n"+
		"Por favor, describe detalladamente tu petición, queja, reclamo o sugerencia:\n\n"+
		"📝 (Escribe tu mensaje ahora)", d.Name)
}

func confirmationText(recordID, department string, at time.Time) string {
	return "✅ *PQRS Registrada Exitosamente*\n\n" +
		fmt.Sprintf("📋 *Número de referencia:* %s\n", recordID) +
		fmt.Sprintf("🏢 *Departamento:* %s\n", department) +
		fmt.Sprintf("📅 *Fecha:* %s\n\n", at.Format(confirmationDateLayout)) +
		"Tu solicitud ha sido dirigida al área encargada para su pronta solución.\n\n" +
		"Recibirás una respuesta en el menor tiempo posible.\n\n" +
		"¡Gracias por contactarnos! 🙏"
}
