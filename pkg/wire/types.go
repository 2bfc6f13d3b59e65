package wire

import "encoding/json"

// MessageEvent is one inbound message as the bridge emits it.
// Field names follow the bridge's JSON contract.
type MessageEvent struct {
	ID             string          `json:"id,omitempty"`
	ProviderID     string          `json:"provider_id,omitempty"`
	ConversationID string          `json:"conversation_id"`
	From           string          `json:"from,omitempty"`
	FromName       string          `json:"from_name,omitempty"`
	FromMe         bool            `json:"from_me,omitempty"`
	System         bool            `json:"system,omitempty"`
	Content        string          `json:"content"`
	Type           string          `json:"type,omitempty"`
	Timestamp      int64           `json:"timestamp"` // unix ms
	MediaURL       string          `json:"media_url,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// StatusEvent is a delivery/read receipt for a previously sent message.
type StatusEvent struct {
	ProviderID     string `json:"provider_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Status         string `json:"status"` // StatusSent, StatusDelivered, StatusRead
}

// Envelope is the nested wrapper shape some bridge versions emit:
// {"event":"message.upsert","data":{...}} or {"event":..., "data":[...]}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ConversationSummary is one item of the bridge's conversation list
// (no message bodies).
type ConversationSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Contact     string   `json:"contact,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	LastMessage string   `json:"last_message,omitempty"`
	LastTime    int64    `json:"last_time,omitempty"` // unix ms
	Unread      int      `json:"unread,omitempty"`
}
