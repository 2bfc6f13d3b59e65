package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			URL:               "http://127.0.0.1:3333",
			MaxRetries:        5,
			BackoffCap:        5 * time.Second,
			SendRatePerSecond: 5,
		},
		Refresh: RefreshConfig{
			FastInterval: time.Second,
			SlowInterval: 2 * time.Second,
			MessageLimit: 50,
		},
		Routing: RoutingConfig{
			PromptHeader:         "Olá! Para direcionar seu atendimento, escolha um setor respondendo com o número:",
			ConfirmationTemplate: "Você está falando com o setor *{department}*. Um atendente irá responder em breve.",
			RatingRequestText:    "Atendimento encerrado. Avalie seu atendimento respondendo com uma nota de *1* a *5*.",
			PromptScanLimit:      30,
			PromptScanWindow:     5 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: "~/.deskclaw/data",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDurationDefaults()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("DESKCLAW_BRIDGE_URL", &c.Bridge.URL)
	envStr("DESKCLAW_BRIDGE_TOKEN", &c.Bridge.Token)
	envStr("DESKCLAW_BRIDGE_INSTANCE", &c.Bridge.InstanceID)

	envStr("DESKCLAW_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("DESKCLAW_MODE", &c.Database.Mode)
	envStr("DESKCLAW_DATA_DIR", &c.Storage.DataDir)

	if v := os.Getenv("DESKCLAW_REFRESH_FAST_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Refresh.FastInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("DESKCLAW_REFRESH_SLOW_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Refresh.SlowInterval = time.Duration(ms) * time.Millisecond
		}
	}
}

// applyDurationDefaults restores durations the JSON file cannot set.
func (c *Config) applyDurationDefaults() {
	if c.Bridge.MaxRetries <= 0 {
		c.Bridge.MaxRetries = 5
	}
	if c.Bridge.BackoffCap <= 0 {
		c.Bridge.BackoffCap = 5 * time.Second
	}
	if c.Bridge.SendRatePerSecond <= 0 {
		c.Bridge.SendRatePerSecond = 5
	}
	if c.Refresh.FastInterval <= 0 {
		c.Refresh.FastInterval = time.Second
	}
	if c.Refresh.SlowInterval <= 0 {
		c.Refresh.SlowInterval = 2 * time.Second
	}
	if c.Refresh.MessageLimit <= 0 {
		c.Refresh.MessageLimit = 50
	}
	if c.Routing.PromptScanLimit <= 0 {
		c.Routing.PromptScanLimit = 30
	}
	if c.Routing.PromptScanWindow <= 0 {
		c.Routing.PromptScanWindow = 5 * time.Minute
	}
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
