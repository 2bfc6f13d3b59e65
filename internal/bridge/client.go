// Package bridge talks to the provider bridge process: a low-latency
// websocket push channel, an HTTP list API used by the refresh poll,
// and outbound send endpoints.
//
// The bridge (e.g. whatsapp-web.js based) owns the actual provider
// session; this package only speaks its JSON contract.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/deskclaw/internal/config"
	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

// State is the push channel's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateFailed means the retry budget is exhausted; only a manual
	// Reconnect resumes automatic attempts.
	StateFailed State = "failed"
)

// ErrRetriesExhausted is reported once the bounded reconnect budget is
// spent and the engine should degrade to polling only.
var ErrRetriesExhausted = errors.New("bridge: reconnect retries exhausted")

// Handlers receive push channel callbacks. All callbacks are invoked
// from the client's read goroutine.
type Handlers struct {
	OnStateChange func(State)
	OnMessages    func(events []wire.MessageEvent)
	OnStatus      func(ev wire.StatusEvent)
}

// Client owns the websocket connection lifecycle: connect, authenticate,
// reconnect with bounded exponential backoff, dispatch inbound events.
type Client struct {
	cfg      config.BridgeConfig
	handlers Handlers
	http     *http.Client
	limiter  *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	retries int

	reconnectCh chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewClient creates a bridge client. Start must be called before any
// push events are delivered; the HTTP fetch/send methods work without
// Start.
func NewClient(cfg config.BridgeConfig, handlers Handlers) *Client {
	return &Client{
		cfg:         cfg,
		handlers:    handlers,
		http:        &http.Client{Timeout: 15 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(cfg.SendRatePerSecond), 1),
		state:       StateDisconnected,
		reconnectCh: make(chan struct{}, 1),
	}
}

// SetHandlers replaces the callback set. Must be called before Start;
// it breaks the construction cycle between client and consumer.
func (c *Client) SetHandlers(h Handlers) {
	c.handlers = h
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the connect/reconnect loop. Preconditions: a known
// provider instance and a non-empty credential.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.InstanceID == "" {
		return fmt.Errorf("bridge: instance id is required")
	}
	if c.cfg.Token == "" {
		return fmt.Errorf("bridge: auth token is required")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.runLoop()
	return nil
}

// Stop tears the connection down and cancels any pending reconnect.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.setState(StateDisconnected)
}

// Reconnect resets the retry budget after StateFailed and triggers a
// new connection attempt. No-op in any other state.
func (c *Client) Reconnect() {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return
	}
	c.retries = 0
	c.mu.Unlock()

	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	slog.Debug("bridge state changed", "state", s)
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(s)
	}
}

// runLoop drives connect attempts and the read loop until the context
// is cancelled.
func (c *Client) runLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		attempt := c.retries
		c.mu.Unlock()

		if attempt >= c.cfg.MaxRetries {
			c.setState(StateFailed)
			slog.Warn("bridge reconnect budget exhausted, polling only", "attempts", attempt)
			select {
			case <-c.ctx.Done():
				return
			case <-c.reconnectCh:
				continue
			}
		}

		if attempt > 0 {
			backoff := backoffDelay(attempt, c.cfg.BackoffCap)
			slog.Info("bridge reconnect scheduled", "attempt", attempt, "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.mu.Lock()
			c.retries++
			c.mu.Unlock()
			slog.Warn("bridge connect failed", "error", err)
			c.setState(StateDisconnected)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.retries = 0
		c.mu.Unlock()
		c.setState(StateConnected)

		serverClosed := c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if !serverClosed {
			// Client-initiated close: stop without burning retries.
			select {
			case <-c.ctx.Done():
				return
			default:
			}
		}
	}
}

// backoffDelay returns the exponential delay for the given attempt,
// capped.
func backoffDelay(attempt int, limit time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
	if d > limit || d <= 0 {
		return limit
	}
	return d
}

func (c *Client) dial() (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	url := wsURL(c.cfg.URL) + "/instances/" + c.cfg.InstanceID + "/socket"
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", url, err)
	}

	auth := wire.Envelope{Event: "auth"}
	auth.Data, _ = json.Marshal(map[string]string{
		"token":    c.cfg.Token,
		"instance": c.cfg.InstanceID,
	})
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bridge auth: %w", err)
	}

	slog.Info("bridge connected", "url", url)
	return conn, nil
}

// readLoop consumes frames until the connection drops. Returns true
// when the drop was server-initiated (reconnect automatically).
func (c *Client) readLoop(conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return false
			default:
			}
			slog.Warn("bridge read error, will reconnect", "error", err)
			return true
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("bridge frame is not valid JSON, skipping", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env wire.Envelope) {
	switch env.Event {
	case wire.EventMessageUpsert:
		events := NormalizeUpsert(env.Data)
		if len(events) > 0 && c.handlers.OnMessages != nil {
			c.handlers.OnMessages(events)
		}
	case wire.EventMessageStatus:
		var ev wire.StatusEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ProviderID == "" {
			slog.Warn("malformed status event, skipping", "error", err)
			return
		}
		if c.handlers.OnStatus != nil {
			c.handlers.OnStatus(ev)
		}
	case wire.EventDisconnect:
		var reason string
		_ = json.Unmarshal(env.Data, &reason)
		slog.Info("bridge sent disconnect", "reason", reason)
	default:
		// Unknown events are ignored; the bridge adds them freely.
	}
}

// NormalizeUpsert flattens the three payload shapes the bridge emits —
// a single message, an array, or a nested envelope wrapping either —
// into a flat event list. Malformed items are skipped, never fatal.
func NormalizeUpsert(data []byte) []wire.MessageEvent {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil
	}

	// Nested wrapper: {"event":..., "data":...}
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Event != "" && len(env.Data) > 0 {
		return NormalizeUpsert(env.Data)
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			slog.Warn("malformed upsert array, skipping batch", "error", err)
			return nil
		}
		out := make([]wire.MessageEvent, 0, len(raw))
		for _, item := range raw {
			var ev wire.MessageEvent
			if err := json.Unmarshal(item, &ev); err != nil || ev.ConversationID == "" {
				slog.Warn("malformed upsert item, skipping", "error", err)
				continue
			}
			out = append(out, ev)
		}
		return out
	}

	var ev wire.MessageEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ConversationID == "" {
		slog.Warn("malformed upsert payload, skipping", "error", err)
		return nil
	}
	return []wire.MessageEvent{ev}
}

// wsURL converts the bridge base URL to its websocket scheme.
func wsURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
