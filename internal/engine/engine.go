// Package engine keeps a single consistent view of every active
// conversation while three independent sources feed it: the
// authoritative persistent store, the periodic refresh poll, and the
// push channel. It drives the routing and lifecycle machines and
// executes their effects.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/batch"
	"github.com/nextlevelbuilder/deskclaw/internal/config"
	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/reconcile"
	"github.com/nextlevelbuilder/deskclaw/internal/refresh"
	"github.com/nextlevelbuilder/deskclaw/internal/routing"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

// Push batching: flush once a conversation has been quiet 25ms, never
// later than 100ms after the batch opened.
const (
	pushDebounce = 25 * time.Millisecond
	pushMaxWait  = 100 * time.Millisecond
)

// Engine is the reconciliation core. One instance per client session.
//
// All mutation of the conversation index happens under mu; the original
// system is a single event loop and the engine preserves that model by
// serializing every state change.
type Engine struct {
	cfg      *config.Config
	stores   *store.Stores
	provider Provider
	resolve  routing.Resolver

	mu            sync.Mutex
	conversations map[string]*model.Conversation
	snapshot      map[string]*model.Conversation
	// processed tracks message keys already evaluated by the machines,
	// so replayed deliveries are inert.
	processed map[string]map[string]bool

	poller  *refresh.Poller
	batcher *batch.Batcher[wire.MessageEvent]
	push    PushControl

	runCtx context.Context
}

// New wires an engine. provider is typically *bridge.Client.
func New(cfg *config.Config, stores *store.Stores, provider Provider) *Engine {
	e := &Engine{
		cfg:           cfg,
		stores:        stores,
		provider:      provider,
		resolve:       routing.DefaultResolver,
		conversations: make(map[string]*model.Conversation),
		snapshot:      make(map[string]*model.Conversation),
		processed:     make(map[string]map[string]bool),
	}
	e.poller = refresh.New(cfg.Refresh.FastInterval, e.RefreshCycle)
	e.batcher = batch.New[wire.MessageEvent](pushDebounce, pushMaxWait, e.handlePushBatch)
	return e
}

// SetResolver overrides the selection-reply resolver (product hook).
func (e *Engine) SetResolver(r routing.Resolver) {
	if r != nil {
		e.resolve = r
	}
}

// Run performs the initial snapshot load and then blocks polling until
// ctx is cancelled. Teardown drains the push batcher.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.loadSnapshot(ctx)
	e.poller.Run(ctx)
	e.batcher.Close()
	return nil
}

// RefreshCycle is one pass of the polling backstop: authoritative
// snapshot first, then the refreshed lists, then merge with snapshot
// precedence. Transient failures keep previous state and are retried
// on the next tick.
func (e *Engine) RefreshCycle(ctx context.Context) {
	e.loadSnapshot(ctx)

	summaries, err := e.provider.ListConversations(ctx)
	if err != nil {
		slog.Warn("refresh: list conversations failed", "error", err)
		return
	}

	for _, s := range summaries {
		if s.ID == "" {
			continue
		}
		events, err := e.provider.ListMessages(ctx, s.ID, e.cfg.Refresh.MessageLimit)
		if err != nil {
			slog.Warn("refresh: list messages failed", "conversation", s.ID, "error", err)
			continue
		}
		e.ingest(ctx, s, messagesFromWire(events))
	}
}

// ingest merges one conversation's refreshed state and evaluates any
// newly arrived user messages.
func (e *Engine) ingest(ctx context.Context, summary wire.ConversationSummary, msgs []model.Message) {
	e.mu.Lock()
	c := e.getOrCreateLocked(summary.ID)
	applySummary(c, summary)
	c.Messages = reconcile.Merge(c.Messages, msgs)
	if snap, ok := e.snapshot[summary.ID]; ok {
		applyAuthoritative(c, snap)
	}
	fresh := e.unprocessedLocked(c)
	e.mu.Unlock()

	for _, m := range fresh {
		e.processInbound(ctx, summary.ID, m)
	}
}

func (e *Engine) getOrCreateLocked(id string) *model.Conversation {
	c, ok := e.conversations[id]
	if !ok {
		c = &model.Conversation{ID: id, Contact: id, Status: model.StatusPending}
		e.conversations[id] = c
	}
	return c
}

// unprocessedLocked collects inbound user messages the machines have
// not evaluated yet and marks them processed.
func (e *Engine) unprocessedLocked(c *model.Conversation) []model.Message {
	seen := e.processed[c.ID]
	if seen == nil {
		seen = make(map[string]bool)
		e.processed[c.ID] = seen
	}

	var fresh []model.Message
	for _, m := range c.Messages {
		if m.Sender != model.SenderUser {
			continue
		}
		key := reconcile.KeyOf(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		// Cross-identity replays: a message first seen without its
		// provider id is the same message when it returns with one.
		if m.ProviderID != "" && m.ID != "" {
			seen[m.ID] = true
		}
		fresh = append(fresh, m)
	}
	return fresh
}

// Conversation returns a copy of one conversation, or nil.
func (e *Engine) Conversation(id string) *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.conversations[id]; ok {
		return c.Clone()
	}
	return nil
}

// Conversations returns copies of every tracked conversation.
func (e *Engine) Conversations() []*model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Conversation, 0, len(e.conversations))
	for _, c := range e.conversations {
		out = append(out, c.Clone())
	}
	return out
}
