package engine

import (
	"log/slog"

	"github.com/nextlevelbuilder/deskclaw/internal/bridge"
	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/reconcile"
	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

// PushControl is the slice of the bridge client the engine steers for
// health reporting and manual recovery.
type PushControl interface {
	State() bridge.State
	Reconnect()
}

// BindPush attaches the push channel's control surface. Optional: an
// engine without a bound push channel simply polls at the fast
// interval forever.
func (e *Engine) BindPush(pc PushControl) {
	e.mu.Lock()
	e.push = pc
	e.mu.Unlock()
}

// PushHandlers returns the callback set to hand bridge.NewClient.
func (e *Engine) PushHandlers() bridge.Handlers {
	return bridge.Handlers{
		OnStateChange: e.onPushState,
		OnMessages:    e.onPushMessages,
		OnStatus:      e.onPushStatus,
	}
}

// PushState reports the push channel's health, for the status surface.
func (e *Engine) PushState() bridge.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.push == nil {
		return bridge.StateDisconnected
	}
	return e.push.State()
}

// ReconnectPush manually restarts a failed push channel.
func (e *Engine) ReconnectPush() {
	e.mu.Lock()
	pc := e.push
	e.mu.Unlock()
	if pc != nil {
		pc.Reconnect()
	}
}

// onPushState adapts the polling cadence: the poll is a backstop while
// push is healthy and the primary feed while it is not.
func (e *Engine) onPushState(s bridge.State) {
	switch s {
	case bridge.StateConnected:
		e.poller.SetInterval(e.cfg.Refresh.SlowInterval)
	default:
		e.poller.SetInterval(e.cfg.Refresh.FastInterval)
	}
	slog.Info("push channel state", "state", s)
}

// onPushMessages feeds events into the per-conversation batcher so a
// burst becomes one merge instead of many.
func (e *Engine) onPushMessages(events []wire.MessageEvent) {
	for _, ev := range events {
		if ev.ConversationID == "" {
			continue
		}
		e.batcher.Add(ev.ConversationID, ev)
	}
}

// handlePushBatch merges one conversation's coalesced burst. Runs on a
// batcher timer goroutine.
func (e *Engine) handlePushBatch(conversationID string, events []wire.MessageEvent) {
	ctx := e.runCtx
	if ctx == nil {
		return
	}

	msgs := messagesFromWire(events)

	e.mu.Lock()
	c := e.getOrCreateLocked(conversationID)
	c.Messages = reconcile.Merge(c.Messages, msgs)
	if snap, ok := e.snapshot[conversationID]; ok {
		applyAuthoritative(c, snap)
	}
	fresh := e.unprocessedLocked(c)
	e.mu.Unlock()

	for _, m := range fresh {
		e.processInbound(ctx, conversationID, m)
	}
}

// onPushStatus upgrades delivery status for an already known message.
// Status events never create messages; an unknown provider id means the
// upsert has not arrived yet and the eventual merge carries the status.
func (e *Engine) onPushStatus(ev wire.StatusEvent) {
	if ev.ProviderID == "" || ev.ConversationID == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conversations[ev.ConversationID]
	if !ok {
		return
	}
	status := model.DeliveryStatus(ev.Status)
	for i := range c.Messages {
		if c.Messages[i].ProviderID != ev.ProviderID {
			continue
		}
		if status.AtLeast(c.Messages[i].Status) {
			c.Messages[i].Status = status
		}
		return
	}
}
