package routing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/reconcile"
)

// Resolver maps a selection reply to a department id, or "" when the
// reply cannot be interpreted. The exact matching rule belongs to the
// surrounding product; DefaultResolver covers numeric index and name.
type Resolver func(text string, departments []model.Department) string

// DefaultResolver accepts a 1-based numeric index or a case-insensitive
// department name match.
func DefaultResolver(text string, departments []model.Department) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(departments) {
			return departments[n-1].ID
		}
		return ""
	}
	for _, d := range departments {
		if strings.EqualFold(d.Name, text) {
			return d.ID
		}
	}
	return ""
}

// Input carries everything one transition evaluation may read.
type Input struct {
	Conversation *model.Conversation
	Incoming     model.Message
	Departments  []model.Department
	Agents       []model.Agent
	Now          time.Time
}

// Evaluate runs one routing transition against an inbound message.
// Pure: it never mutates the conversation; all changes are effects.
// Safe to re-evaluate against the same merged transcript — replays of
// an already-consumed reply or an already-routed conversation yield no
// effects.
func Evaluate(in Input, p Params, resolve Resolver) (State, []Effect) {
	c := in.Conversation
	state := StateOf(c)

	if in.Incoming.Sender != model.SenderUser {
		return state, nil
	}

	switch state {
	case Assigned, PendingUnassigned:
		return state, nil

	case NoDepartment:
		if promptRecentlySent(c, p, in.Now) {
			// Prompt is out, flags just have not persisted yet.
			return SelectionSent, nil
		}
		if len(in.Departments) == 0 {
			return state, nil
		}
		return SelectionSent, []Effect{
			SendPrompt{Contact: c.Contact, Departments: in.Departments},
		}

	case SelectionSent:
		return evaluateSelection(in, p, resolve)
	}
	return state, nil
}

func evaluateSelection(in Input, p Params, resolve Resolver) (State, []Effect) {
	c := in.Conversation

	// Replay guard: a reply already consumed by an earlier evaluation
	// arrives again via the other channel.
	if in.Incoming.Hidden {
		return SelectionSent, nil
	}

	if resolve == nil {
		resolve = DefaultResolver
	}
	departmentID := resolve(in.Incoming.Content, in.Departments)
	if departmentID == "" {
		// Leave the prompt standing — unless it was never actually
		// delivered, in which case retry delivery once.
		if !c.DepartmentSelectionSent && !promptRecentlySent(c, p, in.Now) && len(in.Departments) > 0 {
			return SelectionSent, []Effect{
				SendPrompt{Contact: c.Contact, Departments: in.Departments, Retry: true},
			}
		}
		return SelectionSent, nil
	}

	var departmentName string
	for _, d := range in.Departments {
		if d.ID == departmentID {
			departmentName = d.Name
			break
		}
	}

	// First agent whose membership includes the department. First-match
	// on purpose, not round-robin.
	var agentID string
	for _, a := range in.Agents {
		if a.InDepartment(departmentID) {
			agentID = a.ID
			break
		}
	}

	status := model.StatusPending
	next := PendingUnassigned
	if agentID != "" {
		status = model.StatusOpen
		next = Assigned
	}

	return next, []Effect{
		HideReply{MessageKey: reconcile.KeyOf(in.Incoming)},
		AppendSystem{Text: fmt.Sprintf("Conversa direcionada para o setor %s", departmentName)},
		SendConfirmation{Contact: c.Contact, DepartmentName: departmentName},
		Assign{DepartmentID: departmentID, AssignedAgentID: agentID, Status: status},
	}
}
