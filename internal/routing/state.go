// Package routing decides which department and agent a conversation
// belongs to. Transitions are pure functions from (conversation, event)
// to (state, effects); the engine shell executes the effects.
package routing

import (
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// State is the routing position of one conversation.
type State string

const (
	// NoDepartment: fresh or reopened conversation, no prompt sent.
	NoDepartment State = "no_department"
	// SelectionSent: a department-choice prompt was delivered and the
	// next user reply is interpreted as a selection.
	SelectionSent State = "selection_sent"
	// Assigned: department and agent are set.
	Assigned State = "assigned"
	// PendingUnassigned: department set but no agent was available.
	PendingUnassigned State = "pending_unassigned"
)

// PromptMessageType marks the transcript entry recorded when a
// selection prompt is delivered. Checking this explicit marker replaces
// the original front-end's fragile text sniffing; the header-text scan
// below remains only as a fallback for prompts recorded by older
// clients.
const PromptMessageType = "department_prompt"

// Params tunes prompt detection and customer-facing texts.
type Params struct {
	PromptHeader         string
	ConfirmationTemplate string
	// ScanLimit/ScanWindow bound the recent-history scan that guards
	// against re-sending a prompt whose flags have not persisted yet.
	ScanLimit  int
	ScanWindow time.Duration
}

// StateOf derives the routing state from the conversation's persisted
// fields.
func StateOf(c *model.Conversation) State {
	switch {
	case c.DepartmentID != "" && c.AssignedAgentID != "":
		return Assigned
	case c.DepartmentID != "":
		return PendingUnassigned
	case c.AwaitingDepartmentSelection || c.DepartmentSelectionSent:
		return SelectionSent
	default:
		return NoDepartment
	}
}

// promptRecentlySent scans the tail of the transcript for a delivered
// selection prompt. Covers the window where a prompt went out but the
// persisted flags have not propagated back yet.
func promptRecentlySent(c *model.Conversation, p Params, now time.Time) bool {
	limit := p.ScanLimit
	msgs := c.Messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if now.Sub(m.Timestamp) > p.ScanWindow {
			break
		}
		if m.Sender == model.SenderUser {
			continue
		}
		if m.Type == PromptMessageType {
			return true
		}
		if p.PromptHeader != "" && len(m.Content) >= len(p.PromptHeader) &&
			m.Content[:len(p.PromptHeader)] == p.PromptHeader {
			return true
		}
	}
	return false
}
