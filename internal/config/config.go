package config

import "time"

// Config is the root configuration for the deskclaw engine.
type Config struct {
	Bridge   BridgeConfig   `json:"bridge"`
	Refresh  RefreshConfig  `json:"refresh"`
	Routing  RoutingConfig  `json:"routing"`
	Database DatabaseConfig `json:"database,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
}

// BridgeConfig points at the provider bridge process that owns the
// actual messaging-platform session.
type BridgeConfig struct {
	// URL is the bridge base URL; the websocket endpoint is derived
	// from it (http(s) → ws(s) + /socket).
	URL string `json:"url"`
	// Token authenticates against the bridge. Env only
	// (DESKCLAW_BRIDGE_TOKEN), never persisted in the config file.
	Token string `json:"-"`
	// InstanceID identifies the provider instance/session on the
	// bridge. Connection attempts require a non-empty value.
	InstanceID string `json:"instance_id"`

	// MaxRetries bounds reconnect attempts before the push channel
	// reports failed and the engine degrades to polling only.
	MaxRetries int `json:"max_retries,omitempty"` // default 5
	// BackoffCap caps the exponential reconnect backoff.
	BackoffCap time.Duration `json:"-"` // default 5s
	// SendRatePerSecond throttles outbound sends to the bridge.
	SendRatePerSecond float64 `json:"send_rate_per_second,omitempty"` // default 5
}

// RefreshConfig tunes the polling backstop.
type RefreshConfig struct {
	// FastInterval is used while the push channel is down.
	FastInterval time.Duration `json:"-"` // default 1s
	// SlowInterval is used while the push channel is connected.
	SlowInterval time.Duration `json:"-"` // default 2s
	// MessageLimit caps messages fetched per conversation per cycle.
	MessageLimit int `json:"message_limit,omitempty"` // default 50
}

// RoutingConfig holds the customer-facing routing texts and prompt
// detection tuning.
type RoutingConfig struct {
	// PromptHeader opens the department selection prompt; the numbered
	// department list is appended below it.
	PromptHeader string `json:"prompt_header,omitempty"`
	// ConfirmationTemplate is sent after a successful selection.
	// {department} is replaced with the chosen department name.
	ConfirmationTemplate string `json:"confirmation_template,omitempty"`
	// RatingRequestText is sent to the customer when a conversation is
	// closed with a rating request.
	RatingRequestText string `json:"rating_request_text,omitempty"`
	// PromptScanLimit / PromptScanWindow bound the recent-history scan
	// used to avoid re-sending a prompt whose flags have not persisted.
	PromptScanLimit  int           `json:"prompt_scan_limit,omitempty"` // default 30
	PromptScanWindow time.Duration `json:"-"`                           // default 5m
}

// DatabaseConfig configures Postgres (managed mode).
// PostgresDSN is NEVER read from the config file (secret) — only from
// env DESKCLAW_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"
}

// IsManagedMode reports whether the engine persists to Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// StorageConfig configures the standalone file store.
type StorageConfig struct {
	DataDir string `json:"data_dir,omitempty"` // default ~/.deskclaw/data
}
