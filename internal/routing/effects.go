package routing

import "github.com/nextlevelbuilder/deskclaw/internal/model"

// Effect is one side effect requested by a routing transition. The
// engine shell executes effects in order; sends are conditional writes
// (flags persist only on confirmed delivery).
type Effect interface{ isEffect() }

// SendPrompt asks the shell to deliver the department-choice prompt.
// On confirmed delivery the shell persists departmentSelectionSent and
// awaitingDepartmentSelection and records a PromptMessageType entry.
type SendPrompt struct {
	Contact     string
	Departments []model.Department
	// Retry marks the one-shot re-delivery of a prompt that was flagged
	// but never confirmed sent.
	Retry bool
}

// HideReply removes the raw selection reply from the visible transcript.
type HideReply struct {
	MessageKey string
}

// AppendSystem records a system transcript entry (e.g. "routed to X").
type AppendSystem struct {
	Text string
}

// SendConfirmation delivers the routing confirmation to the contact.
type SendConfirmation struct {
	Contact        string
	DepartmentName string
}

// Assign persists the routing outcome: department, agent (may be empty)
// and the resulting status.
type Assign struct {
	DepartmentID    string
	AssignedAgentID string
	Status          model.Status
}

func (SendPrompt) isEffect()       {}
func (HideReply) isEffect()        {}
func (AppendSystem) isEffect()     {}
func (SendConfirmation) isEffect() {}
func (Assign) isEffect()           {}
