package engine

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/reconcile"
)

// loadSnapshot bulk-fetches the authoritative records and swaps the
// snapshot index atomically. On fetch failure the previous snapshot is
// kept — never nulled out.
func (e *Engine) loadSnapshot(ctx context.Context) {
	snap, err := e.stores.Conversations.LoadAll(ctx)
	if err != nil {
		slog.Warn("snapshot load failed, keeping previous", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.snapshot = snap
	for id, rec := range snap {
		// Persisted transcripts are already reconciled: their user
		// messages must never re-trigger the machines, e.g. reopening
		// a closed conversation after a restart.
		e.markReconciledLocked(id, rec.Messages)

		c, ok := e.conversations[id]
		if !ok {
			// First sight of a persisted conversation: adopt the record
			// wholesale.
			e.conversations[id] = rec.Clone()
			continue
		}
		c.Messages = reconcile.Merge(c.Messages, rec.Messages)
		applyAuthoritative(c, rec)
	}
}

// markReconciledLocked records the given user messages as processed
// under both their identities.
func (e *Engine) markReconciledLocked(conversationID string, msgs []model.Message) {
	seen := e.processed[conversationID]
	if seen == nil {
		seen = make(map[string]bool)
		e.processed[conversationID] = seen
	}
	for _, m := range msgs {
		if m.Sender != model.SenderUser {
			continue
		}
		seen[reconcile.KeyOf(m)] = true
		if m.ProviderID != "" && m.ID != "" {
			seen[m.ID] = true
		}
	}
}

// applyAuthoritative overrides the snapshot-owned fields on the
// in-memory object. Absolute precedence: no exceptions at merge time.
func applyAuthoritative(c, snap *model.Conversation) {
	c.Status = snap.Status
	c.AssignedAgentID = snap.AssignedAgentID
	c.DepartmentID = snap.DepartmentID
	c.Rating = snap.Rating
	c.AwaitingRating = snap.AwaitingRating
	c.AwaitingDepartmentSelection = snap.AwaitingDepartmentSelection
	c.DepartmentSelectionSent = snap.DepartmentSelectionSent
	if snap.EndedAt != nil {
		t := *snap.EndedAt
		c.EndedAt = &t
	} else {
		c.EndedAt = nil
	}
}
