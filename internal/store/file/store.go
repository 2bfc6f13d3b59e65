// Package file implements the store contracts on local JSON files
// (standalone mode). One document per conversation, loaded at startup
// and rewritten on every write.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
)

// NewStores creates file-backed stores rooted at dataDir.
func NewStores(dataDir string) (*store.Stores, error) {
	cs, err := NewConversationStore(filepath.Join(dataDir, "conversations"))
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Conversations: cs,
		Directory:     store.Cached(NewDirectory(dataDir), 0),
	}, nil
}

// ConversationStore keeps one JSON file per conversation.
type ConversationStore struct {
	dir string
	mu  sync.RWMutex
	// cache mirrors disk; LoadAll returns copies of it.
	cache map[string]*model.Conversation
}

func NewConversationStore(dir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	s := &ConversationStore{dir: dir, cache: make(map[string]*model.Conversation)}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConversationStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read conversation dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var c model.Conversation
		if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
			continue
		}
		s.cache[c.ID] = &c
	}
	return nil
}

func (s *ConversationStore) LoadAll(_ context.Context) (map[string]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*model.Conversation, len(s.cache))
	for id, c := range s.cache {
		out[id] = c.Clone()
	}
	return out, nil
}

func (s *ConversationStore) WriteStatus(_ context.Context, w store.StatusWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cache[w.ConversationID]
	if !ok {
		c = &model.Conversation{ID: w.ConversationID}
		s.cache[w.ConversationID] = c
	}
	c.Status = w.Status
	c.AssignedAgentID = w.AssignedAgentID
	c.DepartmentID = w.DepartmentID
	if w.DisplayName != nil {
		c.Name = *w.DisplayName
	}
	if w.Avatar != nil {
		c.Avatar = *w.Avatar
	}
	if w.AwaitingDepartmentSelection != nil {
		c.AwaitingDepartmentSelection = *w.AwaitingDepartmentSelection
	}
	if w.DepartmentSelectionSent != nil {
		c.DepartmentSelectionSent = *w.DepartmentSelectionSent
	}
	if w.AwaitingRating != nil {
		c.AwaitingRating = *w.AwaitingRating
	}
	if w.Rating != nil {
		c.Rating = *w.Rating
	}
	if w.ClearEndedAt {
		c.EndedAt = nil
	} else if w.SetEndedAt {
		now := time.Now()
		c.EndedAt = &now
	}
	return s.persist(c)
}

func (s *ConversationStore) WriteFull(_ context.Context, id string, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := c.Clone()
	cp.ID = id
	s.cache[id] = cp
	return s.persist(cp)
}

func (s *ConversationStore) persist(c *model.Conversation) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", c.ID, err)
	}
	path := filepath.Join(s.dir, sanitizeFilename(c.ID)+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation %s: %w", c.ID, err)
	}
	return os.Rename(tmp, path)
}

func sanitizeFilename(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}

// Directory reads departments.json and agents.json from the data root.
type Directory struct {
	dataDir string
}

func NewDirectory(dataDir string) *Directory {
	return &Directory{dataDir: dataDir}
}

func (d *Directory) ListDepartments(_ context.Context) ([]model.Department, error) {
	var out []model.Department
	if err := readJSON(filepath.Join(d.dataDir, "departments.json"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Directory) ListAgents(_ context.Context) ([]model.Agent, error) {
	var out []model.Agent
	if err := readJSON(filepath.Join(d.dataDir, "agents.json"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
