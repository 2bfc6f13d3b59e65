package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/reconcile"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
)

// ErrUnknownConversation is returned by the external operations when
// the id is not tracked.
var ErrUnknownConversation = fmt.Errorf("engine: unknown conversation")

// Accept moves a pending conversation to open under the given agent.
func (e *Engine) Accept(ctx context.Context, conversationID, agentID string) error {
	return e.mutate(ctx, conversationID, func(c *model.Conversation, w *store.StatusWrite) error {
		c.Status = model.StatusOpen
		c.AssignedAgentID = agentID
		c.UnreadCount = 0
		return nil
	})
}

// Release returns an open conversation to the pending queue, keeping
// its department.
func (e *Engine) Release(ctx context.Context, conversationID string) error {
	return e.mutate(ctx, conversationID, func(c *model.Conversation, w *store.StatusWrite) error {
		c.Status = model.StatusPending
		c.AssignedAgentID = ""
		return nil
	})
}

// Close ends a conversation. With requestRating set, the customer is
// asked for a 1–5 rating and the next single-digit reply is captured
// instead of reopening the conversation.
func (e *Engine) Close(ctx context.Context, conversationID string, requestRating bool) error {
	var contact string

	err := e.mutate(ctx, conversationID, func(c *model.Conversation, w *store.StatusWrite) error {
		c.Status = model.StatusClosed
		c.AwaitingRating = requestRating
		now := time.Now().UTC()
		c.EndedAt = &now
		w.SetEndedAt = true
		awaiting := requestRating
		w.AwaitingRating = &awaiting
		contact = c.Contact
		return nil
	})
	if err != nil || !requestRating {
		return err
	}

	sent, serr := e.provider.SendText(ctx, contact, e.cfg.Routing.RatingRequestText)
	if serr != nil || !sent {
		// The conversation is closed either way; the rating flag stays
		// so a spontaneous digit reply is still captured.
		slog.Warn("rating request send failed", "conversation", conversationID, "error", serr)
	}
	return nil
}

// SendAgentText sends an agent reply and records it optimistically with
// a local id; the provider echo later merges into the same entry.
func (e *Engine) SendAgentText(ctx context.Context, conversationID, content string) error {
	e.mu.Lock()
	c, ok := e.conversations[conversationID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownConversation
	}
	contact := c.Contact
	e.mu.Unlock()

	sent, err := e.provider.SendText(ctx, contact, content)
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if !sent {
		return fmt.Errorf("send text: bridge refused delivery")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok = e.conversations[conversationID]
	if !ok {
		return ErrUnknownConversation
	}
	msg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Sender:    model.SenderAgent,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Status:    model.DeliverySent,
	}
	c.Messages = reconcile.Merge(c.Messages, []model.Message{msg})
	c.LastMessage = content
	c.LastMessageTime = msg.Timestamp
	if err := e.stores.Conversations.WriteFull(ctx, c.ID, c); err != nil {
		slog.Warn("record write failed, keeping optimistic state", "conversation", c.ID, "error", err)
	}
	return nil
}

// MarkRead zeroes the unread counter.
func (e *Engine) MarkRead(ctx context.Context, conversationID string) error {
	return e.mutate(ctx, conversationID, func(c *model.Conversation, w *store.StatusWrite) error {
		c.UnreadCount = 0
		return nil
	})
}

// mutate applies fn to a tracked conversation under the lock and
// persists the result as one combined write.
func (e *Engine) mutate(ctx context.Context, conversationID string, fn func(*model.Conversation, *store.StatusWrite) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conversations[conversationID]
	if !ok {
		return ErrUnknownConversation
	}
	w := store.StatusWrite{ConversationID: conversationID}
	if err := fn(c, &w); err != nil {
		return err
	}
	e.persistLocked(ctx, c, w)
	return nil
}
