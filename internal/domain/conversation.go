// Package domain holds the PQRS records, dialogue state and API types.
//
// ============================================================
// PQRS DIALOGUE: 4 steps
// ============================================================
//
//	INITIAL → AWAITING_DEPARTMENT → AWAITING_DESCRIPTION → COMPLETED
//
// A reset keyword brings any step back to INITIAL. COMPLETED is terminal
// otherwise. States live only in process memory; a restart drops any
// half-finished dialogue.
package domain

import "time"

// Step is the position of a sender within the dialogue.
type Step string

const (
	StepInitial             Step = "inicial"
	StepAwaitingDepartment  Step = "esperando_departamento"
	StepAwaitingDescription Step = "esperando_descripcion"
	StepCompleted           Step = "completado"
)

// ConversationState is the dialogue progress of one sender.
//
// Department is set iff Step is AWAITING_DESCRIPTION or COMPLETED.
// RecordID is set iff Step is COMPLETED.
type ConversationState struct {
	Step        Step        `json:"step"`
	Department  *Department `json:"department,omitempty"`
	Description string      `json:"description,omitempty"`
	RecordID    string      `json:"record_id,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
}

// NewConversationState returns a fresh INITIAL state.
func NewConversationState(now time.Time) *ConversationState {
	return &ConversationState{Step: StepInitial, StartedAt: now}
}

// SelectDepartment moves the state to AWAITING_DESCRIPTION.
// The department is set once; later calls are ignored.
func (s *ConversationState) SelectDepartment(d Department) {
	if s.Department != nil {
		return
	}
	dept := d
	s.Department = &dept
	s.Step = StepAwaitingDescription
}

// Complete records the description and record id and moves to COMPLETED.
func (s *ConversationState) Complete(description, recordID string) {
	s.Description = description
	s.RecordID = recordID
	s.Step = StepCompleted
}

// Snapshot returns a copy safe to hand out of a locked section.
func (s *ConversationState) Snapshot() ConversationState {
	cp := *s
	if s.Department != nil {
		d := *s.Department
		cp.Department = &d
	}
	return cp
}
