// Package reconcile merges partially-ordered message streams arriving
// from the persistent store, the refresh poll, and the push channel into
// one duplicate-free transcript per conversation.
package reconcile

import (
	"fmt"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// keyContentLen bounds how much content participates in a generated key.
const keyContentLen = 32

// KeyOf derives a stable identity key for a message regardless of which
// source produced it. Preference order: provider id, local id, then a
// generated key from sender + minute-truncated timestamp + truncated
// content. Pure and total.
func KeyOf(m model.Message) string {
	if m.ProviderID != "" {
		return m.ProviderID
	}
	if m.ID != "" {
		return m.ID
	}
	content := m.NormalizedContent()
	if len(content) > keyContentLen {
		content = content[:keyContentLen]
	}
	return fmt.Sprintf("%s|%d|%s", m.Sender, m.Timestamp.Unix()/60, content)
}
