package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/deskclaw/internal/lifecycle"
	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/reconcile"
	"github.com/nextlevelbuilder/deskclaw/internal/routing"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
)

// processInbound runs one new user message through the lifecycle and
// routing machines and executes the resulting effects. All resulting
// store writes happen immediately — the store is the precedence source
// for every other component.
func (e *Engine) processInbound(ctx context.Context, convID string, msg model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conversations[convID]
	if !ok {
		return
	}

	if msg.Timestamp.After(c.LastMessageTime) {
		c.LastMessage = msg.Content
		c.LastMessageTime = msg.Timestamp
	}
	if !(c.Status == model.StatusOpen && c.AssignedAgentID != "") {
		c.UnreadCount++
	}

	w := store.StatusWrite{ConversationID: convID}

	for _, eff := range lifecycle.Evaluate(c, msg) {
		switch v := eff.(type) {
		case lifecycle.CaptureRating:
			c.Rating = v.Value
			c.AwaitingRating = false
			rating := v.Value
			cleared := false
			w.Rating = &rating
			w.AwaitingRating = &cleared
			// Rating consumed: status stays closed, no routing.
			e.persistLocked(ctx, c, w)
			return
		case lifecycle.Reopen:
			c.Status = model.StatusPending
			c.AssignedAgentID = ""
			c.DepartmentID = ""
			c.EndedAt = nil
			// Selection flags must reset too: a previously routed
			// conversation re-enters routing from scratch, otherwise
			// the reopening message is misread as a selection reply.
			c.AwaitingDepartmentSelection = false
			c.DepartmentSelectionSent = false
			cleared := false
			w.AwaitingDepartmentSelection = &cleared
			w.DepartmentSelectionSent = &cleared
			w.ClearEndedAt = true
		}
	}

	e.evaluateRoutingLocked(ctx, c, msg, &w)
	e.persistLocked(ctx, c, w)
}

// evaluateRoutingLocked loads fresh reference data and runs one routing
// transition. Reference-data failures are transient: logged, retried
// implicitly when the next message or cycle arrives.
func (e *Engine) evaluateRoutingLocked(ctx context.Context, c *model.Conversation, msg model.Message, w *store.StatusWrite) {
	departments, err := e.stores.Directory.ListDepartments(ctx)
	if err != nil {
		slog.Warn("routing: load departments failed", "error", err)
		return
	}
	agents, err := e.stores.Directory.ListAgents(ctx)
	if err != nil {
		slog.Warn("routing: load agents failed", "error", err)
		return
	}

	_, effects := routing.Evaluate(routing.Input{
		Conversation: c,
		Incoming:     msg,
		Departments:  departments,
		Agents:       agents,
		Now:          time.Now(),
	}, e.routingParams(), e.resolve)

	e.execRoutingLocked(ctx, c, effects, w)
}

func (e *Engine) routingParams() routing.Params {
	return routing.Params{
		PromptHeader:         e.cfg.Routing.PromptHeader,
		ConfirmationTemplate: e.cfg.Routing.ConfirmationTemplate,
		ScanLimit:            e.cfg.Routing.PromptScanLimit,
		ScanWindow:           e.cfg.Routing.PromptScanWindow,
	}
}

func (e *Engine) execRoutingLocked(ctx context.Context, c *model.Conversation, effects []routing.Effect, w *store.StatusWrite) {
	resort := false

	for _, eff := range effects {
		switch v := eff.(type) {
		case routing.SendPrompt:
			sent, err := e.provider.SendSelectionPrompt(ctx, v.Contact, e.cfg.Routing.PromptHeader, v.Departments)
			if err != nil || !sent {
				slog.Warn("selection prompt send failed", "conversation", c.ID, "retry", v.Retry, "error", err)
				continue
			}
			// Flags persist only on confirmed delivery, and the prompt
			// is recorded with its explicit marker type so the next
			// evaluation sees it even before the flags round-trip.
			yes := true
			c.AwaitingDepartmentSelection = true
			c.DepartmentSelectionSent = true
			w.AwaitingDepartmentSelection = &yes
			w.DepartmentSelectionSent = &yes
			c.Messages = append(c.Messages, model.Message{
				ID:        uuid.Must(uuid.NewV7()).String(),
				Sender:    model.SenderSystem,
				Type:      routing.PromptMessageType,
				Content:   renderPrompt(e.cfg.Routing.PromptHeader, v.Departments),
				Timestamp: time.Now().UTC(),
			})
			resort = true

		case routing.HideReply:
			for i := range c.Messages {
				if reconcile.KeyOf(c.Messages[i]) == v.MessageKey {
					c.Messages[i].Hidden = true
				}
			}

		case routing.AppendSystem:
			c.Messages = append(c.Messages, model.Message{
				ID:        uuid.Must(uuid.NewV7()).String(),
				Sender:    model.SenderSystem,
				Content:   v.Text,
				Timestamp: time.Now().UTC(),
			})
			resort = true

		case routing.SendConfirmation:
			sent, err := e.provider.SendConfirmation(ctx, v.Contact, v.DepartmentName, e.cfg.Routing.ConfirmationTemplate)
			if err != nil || !sent {
				// Routing itself still completes; the confirmation is
				// best-effort customer messaging.
				slog.Warn("confirmation send failed", "conversation", c.ID, "error", err)
			}

		case routing.Assign:
			cleared := false
			c.DepartmentID = v.DepartmentID
			c.AssignedAgentID = v.AssignedAgentID
			c.Status = v.Status
			c.AwaitingDepartmentSelection = false
			w.AwaitingDepartmentSelection = &cleared
		}
	}

	if resort {
		c.Messages = reconcile.Merge(c.Messages, nil)
	}
}

// renderPrompt mirrors the bridge's prompt formatting so the recorded
// transcript entry matches what the customer received (and the header
// fallback detection keeps working).
func renderPrompt(header string, departments []model.Department) string {
	var b strings.Builder
	b.WriteString(header)
	for i, d := range departments {
		fmt.Fprintf(&b, "\n*%d* - %s", i+1, d.Name)
	}
	return b.String()
}

// persistLocked pushes the conversation's current authoritative fields
// and full record to the store. Write failures keep the optimistic
// in-memory state; the next snapshot load corrects any divergence.
func (e *Engine) persistLocked(ctx context.Context, c *model.Conversation, w store.StatusWrite) {
	w.ConversationID = c.ID
	w.Status = c.Status
	w.AssignedAgentID = c.AssignedAgentID
	w.DepartmentID = c.DepartmentID
	if c.Name != "" {
		name := c.Name
		w.DisplayName = &name
	}
	if c.Avatar != "" {
		avatar := c.Avatar
		w.Avatar = &avatar
	}

	if err := e.stores.Conversations.WriteStatus(ctx, w); err != nil {
		slog.Warn("status write failed, keeping optimistic state", "conversation", c.ID, "error", err)
	}
	if err := e.stores.Conversations.WriteFull(ctx, c.ID, c); err != nil {
		slog.Warn("record write failed, keeping optimistic state", "conversation", c.ID, "error", err)
	}
}
