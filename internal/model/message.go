package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Sender classifies who produced a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// DeliveryStatus tracks provider-side delivery progression.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

// deliveryRank orders delivery states so receipts never regress a message.
var deliveryRank = map[DeliveryStatus]int{
	DeliverySent:      1,
	DeliveryDelivered: 2,
	DeliveryRead:      3,
}

// AtLeast reports whether s is as advanced as other in the
// sent → delivered → read progression.
func (s DeliveryStatus) AtLeast(other DeliveryStatus) bool {
	return deliveryRank[s] >= deliveryRank[other]
}

// Message is one entry in a conversation transcript.
//
// ID is the local identity (assigned at creation, uuidv7 for
// locally-originated messages). ProviderID is the transport-native
// identity; it may be empty for an optimistic local insert that the
// provider has not acknowledged yet.
type Message struct {
	ID         string          `json:"id"`
	ProviderID string          `json:"providerId,omitempty"`
	Sender     Sender          `json:"sender"`
	Content    string          `json:"content"`
	Type       string          `json:"type,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     DeliveryStatus  `json:"status,omitempty"`
	MediaURL   string          `json:"mediaUrl,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`

	// Hidden messages stay in the record (they carry routing state) but
	// are excluded from the visible transcript.
	Hidden bool `json:"hidden,omitempty"`
}

// NormalizedContent returns the content used for content-equivalence
// comparison. Agent messages carry a "*name:*\n" signature header added
// at send time; strip it so the optimistic local copy and the provider
// echo compare equal.
func (m Message) NormalizedContent() string {
	c := m.Content
	if m.Sender == SenderAgent && strings.HasPrefix(c, "*") {
		if idx := strings.Index(c, ":*\n"); idx > 0 {
			c = c[idx+len(":*\n"):]
		}
	}
	return strings.TrimSpace(c)
}
