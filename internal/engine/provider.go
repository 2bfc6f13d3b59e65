package engine

import (
	"context"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

// Provider is the bridge surface the engine consumes: list fetches for
// the refresh poll and outbound sends for routing/lifecycle effects.
// *bridge.Client implements it; tests supply fakes.
type Provider interface {
	ListConversations(ctx context.Context) ([]wire.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]wire.MessageEvent, error)
	SendText(ctx context.Context, contact, content string) (bool, error)
	SendSelectionPrompt(ctx context.Context, contact, header string, departments []model.Department) (bool, error)
	SendConfirmation(ctx context.Context, contact, departmentName, template string) (bool, error)
}
