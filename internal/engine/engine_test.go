package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/config"
	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/routing"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

type fakeProvider struct {
	mu            sync.Mutex
	summaries     []wire.ConversationSummary
	messages      map[string][]wire.MessageEvent
	texts         []string
	prompts       int
	confirmations []string
	promptFails   bool
}

func (f *fakeProvider) ListConversations(ctx context.Context) ([]wire.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.ConversationSummary(nil), f.summaries...), nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, conversationID string, limit int) ([]wire.MessageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.MessageEvent(nil), f.messages[conversationID]...), nil
}

func (f *fakeProvider) SendText(ctx context.Context, contact, content string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, content)
	return true, nil
}

func (f *fakeProvider) SendSelectionPrompt(ctx context.Context, contact, header string, departments []model.Department) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptFails {
		return false, nil
	}
	f.prompts++
	return true, nil
}

func (f *fakeProvider) SendConfirmation(ctx context.Context, contact, departmentName, template string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations = append(f.confirmations, departmentName)
	return true, nil
}

func (f *fakeProvider) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

type fakeConvStore struct {
	mu           sync.Mutex
	records      map[string]*model.Conversation
	statusWrites []store.StatusWrite
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{records: make(map[string]*model.Conversation)}
}

func (f *fakeConvStore) LoadAll(ctx context.Context) (map[string]*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*model.Conversation, len(f.records))
	for id, c := range f.records {
		out[id] = c.Clone()
	}
	return out, nil
}

func (f *fakeConvStore) WriteStatus(ctx context.Context, w store.StatusWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusWrites = append(f.statusWrites, w)
	return nil
}

func (f *fakeConvStore) WriteFull(ctx context.Context, id string, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = c.Clone()
	return nil
}

type fakeDirectory struct {
	departments []model.Department
	agents      []model.Agent
}

func (f *fakeDirectory) ListDepartments(ctx context.Context) ([]model.Department, error) {
	return f.departments, nil
}

func (f *fakeDirectory) ListAgents(ctx context.Context) ([]model.Agent, error) {
	return f.agents, nil
}

func newTestEngine(t *testing.T, provider *fakeProvider, convs *fakeConvStore) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Refresh.MessageLimit = 50

	dir := &fakeDirectory{
		departments: []model.Department{
			{ID: "d1", Name: "Vendas"},
			{ID: "d2", Name: "Suporte"},
		},
		agents: []model.Agent{
			{ID: "a1", Name: "Ana", DepartmentIDs: []string{"d1"}},
			{ID: "a2", Name: "Bruno", DepartmentIDs: []string{"d2"}},
		},
	}

	e := New(cfg, &store.Stores{Conversations: convs, Directory: dir}, provider)
	e.runCtx = context.Background()
	return e
}

func userEvent(conv, id, content string, at time.Time) wire.MessageEvent {
	return wire.MessageEvent{
		ProviderID:     id,
		ConversationID: conv,
		Content:        content,
		Timestamp:      at.UnixMilli(),
	}
}

func TestFirstInboundSendsPromptOnce(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1", Name: "Maria", Contact: "5511999@c.us"}},
		messages: map[string][]wire.MessageEvent{
			"c1": {userEvent("c1", "p1", "Oi", now)},
		},
	}
	convs := newFakeConvStore()
	e := newTestEngine(t, provider, convs)

	ctx := context.Background()
	e.RefreshCycle(ctx)

	if got := provider.promptCount(); got != 1 {
		t.Fatalf("prompts sent = %d, want 1", got)
	}
	c := e.Conversation("c1")
	if c == nil {
		t.Fatal("conversation not tracked")
	}
	if !c.AwaitingDepartmentSelection || !c.DepartmentSelectionSent {
		t.Errorf("selection flags = %v/%v, want true/true", c.AwaitingDepartmentSelection, c.DepartmentSelectionSent)
	}
	if c.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", c.Status)
	}

	found := false
	for _, m := range c.Messages {
		if m.Type == routing.PromptMessageType && m.Sender == model.SenderSystem {
			found = true
		}
	}
	if !found {
		t.Error("prompt system message not recorded")
	}

	// Same refresh again: replayed delivery must be inert.
	e.RefreshCycle(ctx)
	if got := provider.promptCount(); got != 1 {
		t.Errorf("prompts after replay = %d, want 1", got)
	}
}

func TestSelectionAssignsFirstMatchingAgent(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1", Contact: "5511999@c.us"}},
		messages: map[string][]wire.MessageEvent{
			"c1": {userEvent("c1", "p1", "Oi", now.Add(-time.Minute))},
		},
	}
	convs := newFakeConvStore()
	e := newTestEngine(t, provider, convs)

	ctx := context.Background()
	e.RefreshCycle(ctx) // prompt goes out

	provider.mu.Lock()
	provider.messages["c1"] = append(provider.messages["c1"], userEvent("c1", "p2", "2", now))
	provider.mu.Unlock()
	e.RefreshCycle(ctx)

	c := e.Conversation("c1")
	if c.DepartmentID != "d2" {
		t.Fatalf("department = %q, want d2", c.DepartmentID)
	}
	if c.AssignedAgentID != "a2" {
		t.Errorf("agent = %q, want a2", c.AssignedAgentID)
	}
	if c.Status != model.StatusOpen {
		t.Errorf("status = %q, want open", c.Status)
	}
	if c.AwaitingDepartmentSelection {
		t.Error("awaitingDepartmentSelection still set after assignment")
	}

	var hidden, confirmed bool
	for _, m := range c.Messages {
		if m.ProviderID == "p2" && m.Hidden {
			hidden = true
		}
		if m.Sender == model.SenderSystem && strings.Contains(m.Content, "Suporte") {
			confirmed = true
		}
	}
	if !hidden {
		t.Error("selection reply not hidden")
	}
	if !confirmed {
		t.Error("system confirmation entry missing")
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.confirmations) != 1 || provider.confirmations[0] != "Suporte" {
		t.Errorf("confirmations = %v, want [Suporte]", provider.confirmations)
	}
}

func TestSnapshotOverridesRefreshedStatus(t *testing.T) {
	now := time.Now()
	convs := newFakeConvStore()
	convs.records["c1"] = &model.Conversation{
		ID: "c1", Contact: "x", Status: model.StatusOpen,
		AssignedAgentID: "a1", DepartmentID: "d1",
	}

	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1"}},
		messages: map[string][]wire.MessageEvent{
			"c1": {userEvent("c1", "p1", "tudo bem?", now)},
		},
	}
	e := newTestEngine(t, provider, convs)
	e.RefreshCycle(context.Background())

	c := e.Conversation("c1")
	if c.Status != model.StatusOpen || c.AssignedAgentID != "a1" || c.DepartmentID != "d1" {
		t.Errorf("snapshot fields lost: %q/%q/%q", c.Status, c.AssignedAgentID, c.DepartmentID)
	}
	// Open and assigned: routing stays inert and unread is not counted.
	if got := provider.promptCount(); got != 0 {
		t.Errorf("prompt sent to an assigned conversation")
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for open+assigned", c.UnreadCount)
	}
}

func TestClosedConversationReopensOnInbound(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Hour)
	convs := newFakeConvStore()
	// A conversation that went through routing once: selection flags
	// were persisted when its original prompt was delivered.
	convs.records["c1"] = &model.Conversation{
		ID: "c1", Contact: "x", Status: model.StatusClosed,
		AssignedAgentID: "a1", DepartmentID: "d1", EndedAt: &ended,
		DepartmentSelectionSent: true,
	}

	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1"}},
		messages: map[string][]wire.MessageEvent{
			"c1": {userEvent("c1", "p9", "preciso de ajuda de novo", now)},
		},
	}
	e := newTestEngine(t, provider, convs)
	e.RefreshCycle(context.Background())

	c := e.Conversation("c1")
	if c.Status != model.StatusPending {
		t.Fatalf("status = %q, want pending after reopen", c.Status)
	}
	if c.AssignedAgentID != "" || c.DepartmentID != "" || c.EndedAt != nil {
		t.Error("reopen did not clear assignment fields")
	}
	// Routing must re-enter from scratch: the reopening message is a
	// greeting, not a selection reply, so a fresh prompt goes out.
	if got := provider.promptCount(); got != 1 {
		t.Errorf("prompts = %d, want 1 after reopen", got)
	}
	if !c.AwaitingDepartmentSelection || !c.DepartmentSelectionSent {
		t.Errorf("selection flags = %v/%v after reopen prompt, want true/true",
			c.AwaitingDepartmentSelection, c.DepartmentSelectionSent)
	}

	// Reopen and prompt flags land in one combined authoritative write.
	convs.mu.Lock()
	defer convs.mu.Unlock()
	if len(convs.statusWrites) != 1 {
		t.Fatalf("status writes = %d, want 1", len(convs.statusWrites))
	}
	w := convs.statusWrites[0]
	if !w.ClearEndedAt {
		t.Error("write does not clear endedAt")
	}
	if w.AwaitingDepartmentSelection == nil || !*w.AwaitingDepartmentSelection {
		t.Error("write does not set awaitingDepartmentSelection")
	}
}

func TestPersistedTranscriptDoesNotReprocess(t *testing.T) {
	// Restart scenario: the store record carries a transcript whose
	// user messages were all handled in a previous run. Loading them
	// back must not feed them through the machines again.
	old := time.Now().Add(-3 * time.Hour)
	ended := time.Now().Add(-2 * time.Hour)
	convs := newFakeConvStore()
	convs.records["c1"] = &model.Conversation{
		ID: "c1", Contact: "x", Status: model.StatusClosed,
		DepartmentSelectionSent: true, EndedAt: &ended,
		Messages: []model.Message{
			{ProviderID: "p1", Sender: model.SenderUser, Content: "preciso de ajuda", Timestamp: old},
		},
	}

	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1"}},
		messages: map[string][]wire.MessageEvent{
			"c1": {userEvent("c1", "p1", "preciso de ajuda", old)},
		},
	}
	e := newTestEngine(t, provider, convs)
	e.RefreshCycle(context.Background())

	c := e.Conversation("c1")
	if c.Status != model.StatusClosed {
		t.Fatalf("status = %q, want closed: historical message reopened the conversation", c.Status)
	}
	if c.EndedAt == nil {
		t.Error("endedAt cleared by a historical message")
	}
	if got := provider.promptCount(); got != 0 {
		t.Errorf("prompts = %d, want 0 for an already handled transcript", got)
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0: historical messages are not new", c.UnreadCount)
	}
}

func TestRatingCapturedWithoutReopen(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Minute)
	convs := newFakeConvStore()
	convs.records["c1"] = &model.Conversation{
		ID: "c1", Contact: "x", Status: model.StatusClosed,
		AwaitingRating: true, EndedAt: &ended,
	}

	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1"}},
		messages: map[string][]wire.MessageEvent{
			"c1": {userEvent("c1", "p1", "4", now)},
		},
	}
	e := newTestEngine(t, provider, convs)
	e.RefreshCycle(context.Background())

	c := e.Conversation("c1")
	if c.Rating != 4 {
		t.Fatalf("rating = %d, want 4", c.Rating)
	}
	if c.AwaitingRating {
		t.Error("awaitingRating still set")
	}
	if c.Status != model.StatusClosed {
		t.Errorf("status = %q, want closed (rating must not reopen)", c.Status)
	}
	if got := provider.promptCount(); got != 0 {
		t.Error("routing ran on a consumed rating reply")
	}
}

func TestCloseWithRatingRequest(t *testing.T) {
	provider := &fakeProvider{
		summaries: []wire.ConversationSummary{{ID: "c1", Contact: "5511@c.us"}},
		messages:  map[string][]wire.MessageEvent{},
	}
	convs := newFakeConvStore()
	e := newTestEngine(t, provider, convs)
	ctx := context.Background()
	e.RefreshCycle(ctx)

	if err := e.Close(ctx, "c1", true); err != nil {
		t.Fatal(err)
	}
	c := e.Conversation("c1")
	if c.Status != model.StatusClosed || !c.AwaitingRating || c.EndedAt == nil {
		t.Errorf("close state: status=%q awaiting=%v endedAt=%v", c.Status, c.AwaitingRating, c.EndedAt)
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.texts) != 1 || !strings.Contains(provider.texts[0], "*1* a *5*") {
		t.Errorf("rating request texts = %v", provider.texts)
	}
}

func TestPushBatchTriggersProcessing(t *testing.T) {
	provider := &fakeProvider{messages: map[string][]wire.MessageEvent{}}
	convs := newFakeConvStore()
	e := newTestEngine(t, provider, convs)

	e.handlePushBatch("c1", []wire.MessageEvent{
		userEvent("c1", "p1", "Oi", time.Now()),
	})

	if got := provider.promptCount(); got != 1 {
		t.Fatalf("prompts = %d, want 1 from push path", got)
	}
	c := e.Conversation("c1")
	if c == nil || c.UnreadCount != 1 {
		t.Errorf("push-created conversation missing or unread wrong: %+v", c)
	}
}

func TestStatusEventNeverRegresses(t *testing.T) {
	provider := &fakeProvider{messages: map[string][]wire.MessageEvent{}}
	convs := newFakeConvStore()
	e := newTestEngine(t, provider, convs)

	e.mu.Lock()
	c := e.getOrCreateLocked("c1")
	c.Messages = []model.Message{
		{ID: "m1", ProviderID: "p1", Sender: model.SenderAgent, Content: "ola", Timestamp: time.Now(), Status: model.DeliveryRead},
	}
	e.mu.Unlock()

	e.onPushStatus(wire.StatusEvent{ConversationID: "c1", ProviderID: "p1", Status: string(model.DeliverySent)})
	if got := e.Conversation("c1").Messages[0].Status; got != model.DeliveryRead {
		t.Errorf("status regressed to %q", got)
	}

	e.onPushStatus(wire.StatusEvent{ConversationID: "c1", ProviderID: "p1", Status: string(model.DeliveryRead)})
	if got := e.Conversation("c1").Messages[0].Status; got != model.DeliveryRead {
		t.Errorf("status = %q, want read", got)
	}

	// Unknown provider id: no message created.
	e.onPushStatus(wire.StatusEvent{ConversationID: "c1", ProviderID: "missing", Status: string(model.DeliveryRead)})
	if n := len(e.Conversation("c1").Messages); n != 1 {
		t.Errorf("messages = %d, status event must not create entries", n)
	}
}
