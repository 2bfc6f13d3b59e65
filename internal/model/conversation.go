package model

import "time"

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

// Conversation is one addressable thread with a single contact, keyed by
// the provider's conversation id.
type Conversation struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Code    string   `json:"code,omitempty"`
	Contact string   `json:"contact,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	Status          Status `json:"status"`
	AssignedAgentID string `json:"assignedAgentId,omitempty"`
	DepartmentID    string `json:"departmentId,omitempty"`

	AwaitingDepartmentSelection bool `json:"awaitingDepartmentSelection,omitempty"`
	DepartmentSelectionSent     bool `json:"departmentSelectionSent,omitempty"`

	AwaitingRating bool `json:"awaitingRating,omitempty"`
	Rating         int  `json:"rating,omitempty"` // 1..5, 0 = unrated

	EndedAt *time.Time `json:"endedAt,omitempty"`

	Messages []Message `json:"messages,omitempty"`

	LastMessage     string    `json:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime,omitempty"`
	UnreadCount     int       `json:"unreadCount,omitempty"`
}

// Clone returns a deep-enough copy: the message slice and tags are
// copied so merge output never aliases the input.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	if c.Tags != nil {
		cp.Tags = append([]string(nil), c.Tags...)
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// VisibleMessages filters out hidden transcript entries (e.g. a consumed
// numeric department reply).
func (c *Conversation) VisibleMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if !m.Hidden {
			out = append(out, m)
		}
	}
	return out
}

// Department is a routing target for new conversations.
type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Agent is a support agent that can be assigned to conversations.
type Agent struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	DepartmentIDs []string `json:"departmentIds,omitempty"`
}

// InDepartment reports whether the agent is a member of the department.
func (a Agent) InDepartment(departmentID string) bool {
	for _, id := range a.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}
