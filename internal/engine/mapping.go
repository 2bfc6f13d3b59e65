package engine

import (
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

// messageFromWire converts one bridge event to the canonical message
// shape.
func messageFromWire(ev wire.MessageEvent) model.Message {
	sender := model.SenderUser
	switch {
	case ev.System:
		sender = model.SenderSystem
	case ev.FromMe:
		sender = model.SenderAgent
	}

	return model.Message{
		ID:         ev.ID,
		ProviderID: ev.ProviderID,
		Sender:     sender,
		Content:    ev.Content,
		Type:       ev.Type,
		Timestamp:  time.UnixMilli(ev.Timestamp).UTC(),
		MediaURL:   ev.MediaURL,
		Raw:        ev.Raw,
	}
}

func messagesFromWire(events []wire.MessageEvent) []model.Message {
	out := make([]model.Message, 0, len(events))
	for _, ev := range events {
		out = append(out, messageFromWire(ev))
	}
	return out
}

// applySummary folds refresh-list shell fields into the conversation.
// Display fields are overwritten when the bridge knows them; counters
// the engine maintains itself are left alone.
func applySummary(c *model.Conversation, s wire.ConversationSummary) {
	if s.Name != "" {
		c.Name = s.Name
	}
	if s.Avatar != "" {
		c.Avatar = s.Avatar
	}
	if s.Contact != "" {
		c.Contact = s.Contact
	}
	if len(s.Tags) > 0 {
		c.Tags = append([]string(nil), s.Tags...)
	}
	if s.LastTime > 0 {
		t := time.UnixMilli(s.LastTime).UTC()
		if t.After(c.LastMessageTime) {
			c.LastMessageTime = t
			c.LastMessage = s.LastMessage
		}
	}
}
