package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ============================================================
// Department catalog
// ============================================================

// Department is one of the fixed areas a PQRS can be routed to.
type Department struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// departments is the static catalog, ordered by menu key.
var departments = []Department{
	{Key: "1", Name: "Tecnología", Code: "TEC"},
	{Key: "2", Name: "Aseo y Mantenimiento", Code: "ASE"},
	{Key: "3", Name: "Educativo", Code: "EDU"},
	{Key: "4", Name: "Administrativo", Code: "ADM"},
	{Key: "5", Name: "Biblioteca", Code: "BIB"},
	{Key: "6", Name: "Seguridad", Code: "SEG"},
	{Key: "7", Name: "Otro", Code: "OTR"},
}

// Departments returns a copy of the catalog in menu order.
func Departments() []Department {
	out := make([]Department, len(departments))
	copy(out, departments)
	return out
}

// DepartmentByKey looks up a department by its menu key ("1".."7").
func DepartmentByKey(key string) (Department, bool) {
	for _, d := range departments {
		if d.Key == key {
			return d, true
		}
	}
	return Department{}, false
}

// DepartmentByCode looks up a department by its code (case-insensitive).
func DepartmentByCode(code string) (Department, bool) {
	for _, d := range departments {
		if strings.EqualFold(d.Code, code) {
			return d, true
		}
	}
	return Department{}, false
}

// ParseDepartment resolves free text into a department.
// A numeric key wins, then an exact name or code (case-insensitive). After
// that the first department whose name appears in the input is returned, then
// the first one whose code appears as a separate word.
func ParseDepartment(text string) (Department, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Department{}, false
	}
	if d, ok := DepartmentByKey(lower); ok {
		return d, true
	}
	for _, d := range departments {
		if strings.EqualFold(lower, d.Name) || strings.EqualFold(lower, d.Code) {
			return d, true
		}
	}
	for _, d := range departments {
		if strings.Contains(lower, strings.ToLower(d.Name)) {
			return d, true
		}
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, d := range departments {
		code := strings.ToLower(d.Code)
		for _, w := range words {
			if w == code {
				return d, true
			}
		}
	}
	return Department{}, false
}

// ============================================================
// ComplaintRecord: persisted PQRS
// ============================================================

// RecordIDLayout is the timestamp portion of a record id (YYYYMMDDHHMMSS).
const RecordIDLayout = "20060102150405"

// NewRecordID builds the id for a record created at t in the given department.
func NewRecordID(deptCode string, t time.Time) string {
	return fmt.Sprintf("PQRS-%s-%s", deptCode, t.Format(RecordIDLayout))
}

// ComplaintRecord is a completed PQRS. The JSON names are the on-disk format
// shared with the dashboard and must not change.
type ComplaintRecord struct {
	RecordID       string     `json:"pqrs_id"`
	DepartmentName string     `json:"departamento"`
	DepartmentCode string     `json:"codigo_departamento"`
	Description    string     `json:"descripcion"`
	SubmittedAt    Timestamp  `json:"fecha"`
	SenderAddress  string     `json:"telefono"`
	AlertSent      bool       `json:"enviado_telegram"`
	CreatedAt      Timestamp  `json:"fecha_registro"`
	AlertSentAt    *Timestamp `json:"fecha_envio_telegram,omitempty"`
}

// Alert is what the chat-alert sink receives for a record.
type Alert struct {
	RecordID     string
	Department   string
	Description  string
	SimilarCount int
}

// ============================================================
// Timestamp: lenient JSON time
// ============================================================

// Timestamp marshals as RFC 3339 and also accepts the zone-less ISO format
// written by earlier deployments (e.g. "2025-03-01T10:15:30.123456").
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", s)
}
