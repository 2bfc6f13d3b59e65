package store

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// DefaultDirectoryTTL bounds how stale routing reference data may be.
// Short on purpose: departments are loaded fresh around routing
// decisions, the cache only absorbs bursts.
const DefaultDirectoryTTL = 30 * time.Second

// CachedDirectory wraps a Directory with a short-lived cache.
type CachedDirectory struct {
	inner Directory
	ttl   time.Duration

	mu            sync.Mutex
	departments   []model.Department
	departmentsAt time.Time
	agents        []model.Agent
	agentsAt      time.Time
}

// Cached wraps dir with a ttl cache. A ttl of 0 uses DefaultDirectoryTTL.
func Cached(dir Directory, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &CachedDirectory{inner: dir, ttl: ttl}
}

func (c *CachedDirectory) ListDepartments(ctx context.Context) ([]model.Department, error) {
	c.mu.Lock()
	if c.departments != nil && time.Since(c.departmentsAt) < c.ttl {
		out := append([]model.Department(nil), c.departments...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	fresh, err := c.inner.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.departments = fresh
	c.departmentsAt = time.Now()
	c.mu.Unlock()
	return append([]model.Department(nil), fresh...), nil
}

func (c *CachedDirectory) ListAgents(ctx context.Context) ([]model.Agent, error) {
	c.mu.Lock()
	if c.agents != nil && time.Since(c.agentsAt) < c.ttl {
		out := append([]model.Agent(nil), c.agents...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	fresh, err := c.inner.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.agents = fresh
	c.agentsAt = time.Now()
	c.mu.Unlock()
	return append([]model.Agent(nil), fresh...), nil
}

// Invalidate drops both caches; the next call hits the backing store.
func (c *CachedDirectory) Invalidate() {
	c.mu.Lock()
	c.departments = nil
	c.agents = nil
	c.mu.Unlock()
}
