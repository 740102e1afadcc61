package sendgrid

import (
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
)

// emailDateLayout is dd/mm/yyyy HH:MM:SS.
const emailDateLayout = "02/01/2006 15:04:05"

const footerText = "Este correo fue generado automáticamente por el Sistema de PQRS de la Universidad Los Libertadores."

type emailView struct {
	RecordID       string
	Date           string
	DepartmentName string
	DepartmentCode string
	Phone          string
	Description    string
	Footer         string
}

func newEmailView(rec domain.ComplaintRecord, now time.Time) emailView {
	at := rec.SubmittedAt.Time
	if at.IsZero() {
		at = now
	}
	return emailView{
		RecordID:       rec.RecordID,
		Date:           at.Format(emailDateLayout),
		DepartmentName: rec.DepartmentName,
		DepartmentCode: rec.DepartmentCode,
		Phone:          rec.SenderAddress,
		Description:    rec.Description,
		Footer:         footerText,
	}
}

var htmlBody = htmltemplate.Must(htmltemplate.New("pqrs.html").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <style>
      body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
      .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 8px; }
      h2 { color: #0066cc; border-bottom: 2px solid #0066cc; padding-bottom: 10px; }
      .info-box { background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0; }
      .description { background-color: #fff; padding: 15px; border-left: 4px solid #0066cc; margin: 10px 0; white-space: pre-wrap; }
      .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; color: #666; font-size: 12px; }
    </style>
  </head>
  <body>
    <div class="container">
      <h2>📋 Nueva PQRS Registrada</h2>
      <div class="info-box">
        <p style="margin: 5px 0;"><strong>🆔 ID de PQRS:</strong> {{.RecordID}}</p>
        <p style="margin: 5px 0;"><strong>📅 Fecha de Registro:</strong> {{.Date}}</p>
        <p style="margin: 5px 0;"><strong>🏢 Departamento:</strong> {{.DepartmentName}} ({{.DepartmentCode}})</p>
        <p style="margin: 5px 0;"><strong>📱 Teléfono:</strong> {{.Phone}}</p>
      </div>
      <div style="margin: 20px 0;">
        <h3 style="color: #333;">📝 Descripción del Problema:</h3>
        <div class="description">{{.Description}}</div>
      </div>
      <div class="footer">
        <p>{{.Footer}}</p>
        <p>Por favor, revise y atienda esta solicitud en el menor tiempo posible.</p>
      </div>
    </div>
  </body>
</html>
`))

var textBody = texttemplate.Must(texttemplate.New("pqrs.txt").Parse(`Nueva PQRS Registrada

ID de PQRS: {{.RecordID}}
Fecha de Registro: {{.Date}}
Departamento: {{.DepartmentName}} ({{.DepartmentCode}})
Teléfono: {{.Phone}}

Descripción del Problema:
{{.Description}}

---
{{.Footer}}
`))

func renderBodies(view emailView) (plain, html string, err error) {
	var tb, hb strings.Builder
	if err := textBody.Execute(&tb, view); err != nil {
		return "", "", err
	}
	if err := htmlBody.Execute(&hb, view); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}
