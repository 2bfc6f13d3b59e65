// Package store defines the persistence contracts the engine writes
// through and reads its authoritative snapshot from.
package store

import (
	"context"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// StatusWrite is one authoritative status/routing update. Optional
// fields are pointers so a nil leaves the stored value untouched.
type StatusWrite struct {
	ConversationID  string
	Status          model.Status
	AssignedAgentID string
	DepartmentID    string

	DisplayName *string
	Avatar      *string

	AwaitingDepartmentSelection *bool
	DepartmentSelectionSent     *bool
	AwaitingRating              *bool
	Rating                      *int
	ClearEndedAt                bool
	SetEndedAt                  bool
}

// ConversationStore is the authoritative record set. Snapshot fields
// loaded from here always win over refresh/push data.
type ConversationStore interface {
	// LoadAll bulk-fetches every persisted conversation, keyed by id.
	LoadAll(ctx context.Context) (map[string]*model.Conversation, error)
	// WriteStatus updates status/ownership/routing fields immediately.
	WriteStatus(ctx context.Context, w StatusWrite) error
	// WriteFull replaces the whole persisted record.
	WriteFull(ctx context.Context, id string, c *model.Conversation) error
}

// Directory provides routing reference data. Implementations hit the
// backing store on every call; wrap with Cached to bound request volume.
type Directory interface {
	ListDepartments(ctx context.Context) ([]model.Department, error)
	ListAgents(ctx context.Context) ([]model.Agent, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Conversations ConversationStore
	Directory     Directory
}

// Config selects and parameterizes a backend.
type Config struct {
	// PostgresDSN enables the Postgres backend when non-empty.
	// Comes from env only, never from the config file.
	PostgresDSN string
	// DataDir is the file backend's root (standalone mode).
	DataDir string
}
