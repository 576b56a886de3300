package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/javachat/javachat-cli/internal/chat"
	"github.com/javachat/javachat-cli/internal/models"
)

type mockBackend struct {
	nextID    string
	idErr     error
	deleteErr error
	summaries []models.ConversationSummary
	listErr   error
	messages  map[string][]models.Message

	deleted []string
}

func (m *mockBackend) NewConversationID(context.Context) (string, error) {
	return m.nextID, m.idErr
}

func (m *mockBackend) DeleteConversation(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockBackend) Conversations(context.Context) ([]models.ConversationSummary, error) {
	return m.summaries, m.listErr
}

func (m *mockBackend) Messages(_ context.Context, conversationID string) ([]models.Message, error) {
	return m.messages[conversationID], nil
}

// stepClock hands out strictly increasing timestamps.
func stepClock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, backend *mockBackend, ids chat.IDStrategy) *chat.Store {
	t.Helper()
	return chat.NewStore(backend, ids, discardLogger(), chat.WithClock(stepClock()))
}

func TestCreateConversation(t *testing.T) {
	backend := &mockBackend{nextID: "c1"}
	store := newStore(t, backend, nil)

	id, err := store.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if id != "c1" {
		t.Errorf("CreateConversation() id = %q, want %q", id, "c1")
	}
	if store.ActiveID() != "c1" {
		t.Errorf("ActiveID() = %q, want %q", store.ActiveID(), "c1")
	}

	conversation := store.ActiveConversation()
	if conversation == nil {
		t.Fatal("ActiveConversation() = nil")
	}
	if conversation.Title != models.DefaultTitle {
		t.Errorf("Title = %q, want %q", conversation.Title, models.DefaultTitle)
	}

	// New conversations go in first.
	backend.nextID = "c2"
	if _, err := store.CreateConversation(context.Background()); err != nil {
		t.Fatal(err)
	}
	sorted := store.SortedConversations()
	if len(sorted) != 2 || sorted[0].ID != "c2" {
		t.Errorf("newest conversation not first, got %+v", sorted)
	}
}

func TestCreateConversationPropagatesIdentityFailure(t *testing.T) {
	backend := &mockBackend{idErr: errors.New("backend down")}
	store := newStore(t, backend, nil)

	if _, err := store.CreateConversation(context.Background()); err == nil {
		t.Fatal("CreateConversation() error = nil, want error")
	}
	if len(store.SortedConversations()) != 0 {
		t.Error("failed creation must not insert a conversation")
	}
}

func TestSetActiveUnknownIDYieldsNilView(t *testing.T) {
	store := newStore(t, &mockBackend{}, nil)

	store.SetActive("ghost")
	if store.ActiveConversation() != nil {
		t.Error("ActiveConversation() should be nil for an unknown id")
	}
	store.SetActive("")
	if store.ActiveConversation() != nil {
		t.Error("ActiveConversation() should be nil with no selection")
	}
}

func TestDeleteConversation(t *testing.T) {
	tests := []struct {
		name       string
		deleteID   string
		activeID   string
		wantActive string
	}{
		{
			// Seeding unshifts, so collection order is c3, c2, c1.
			name:       "deleting the active conversation re-selects the first remaining",
			deleteID:   "c2",
			activeID:   "c2",
			wantActive: "c3",
		},
		{
			name:       "deleting a non-active conversation keeps the selection",
			deleteID:   "c1",
			activeID:   "c2",
			wantActive: "c2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{}
			store := newStore(t, backend, nil)
			seedConversations(t, store, backend, "c1", "c2", "c3")
			store.SetActive(tt.activeID)

			if err := store.DeleteConversation(context.Background(), tt.deleteID); err != nil {
				t.Fatalf("DeleteConversation() error = %v", err)
			}
			if store.Conversation(tt.deleteID) != nil {
				t.Error("conversation still present after delete")
			}
			if store.ActiveID() != tt.wantActive {
				t.Errorf("ActiveID() = %q, want %q", store.ActiveID(), tt.wantActive)
			}
		})
	}
}

func TestDeleteLastConversationClearsSelection(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, nil)
	seedConversations(t, store, backend, "c1")
	store.SetActive("c1")

	if err := store.DeleteConversation(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if store.ActiveID() != "" {
		t.Errorf("ActiveID() = %q, want empty", store.ActiveID())
	}
}

func TestFailedDeleteKeepsLocalState(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, nil)
	seedConversations(t, store, backend, "c1", "c2")
	store.SetActive("c1")
	backend.deleteErr = errors.New("backend down")

	if err := store.DeleteConversation(context.Background(), "c1"); err == nil {
		t.Fatal("DeleteConversation() error = nil, want error")
	}
	if store.Conversation("c1") == nil {
		t.Error("conversation removed locally despite backend failure")
	}
	if store.ActiveID() != "c1" {
		t.Errorf("ActiveID() = %q, want %q", store.ActiveID(), "c1")
	}
}

func TestAddMessage(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, chat.LocalIDs{})
	seedConversations(t, store, backend, "c1")

	before := store.Conversation("c1").UpdateTime
	msg := store.AddMessage("c1", models.RoleUser, "hi")
	if msg == nil {
		t.Fatal("AddMessage() = nil")
	}
	if msg.ID == "" {
		t.Error("LocalIDs strategy should assign an id at creation")
	}
	if msg.ConversationID != "c1" || msg.Role != models.RoleUser || msg.Content != "hi" {
		t.Errorf("unexpected message %+v", msg)
	}
	if !store.Conversation("c1").UpdateTime.After(before) {
		t.Error("AddMessage() must advance UpdateTime")
	}

	if got := store.AddMessage("ghost", models.RoleUser, "hi"); got != nil {
		t.Errorf("AddMessage() on unknown conversation = %+v, want nil", got)
	}
}

func TestAddMessageBackendIDs(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, chat.BackendIDs{})
	seedConversations(t, store, backend, "c1")

	msg := store.AddMessage("c1", models.RoleAssistant, "")
	if msg == nil {
		t.Fatal("AddMessage() = nil")
	}
	if msg.ID != "" {
		t.Errorf("BackendIDs strategy should leave the id empty, got %q", msg.ID)
	}

	store.SetMessageID(msg, "m1")
	if msg.ID != "m1" {
		t.Errorf("SetMessageID() id = %q, want %q", msg.ID, "m1")
	}
	store.SetMessageID(msg, "")
	if msg.ID != "m1" {
		t.Error("SetMessageID() must ignore empty ids")
	}
}

func TestAppendMessageContent(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, nil)
	seedConversations(t, store, backend, "c1")
	msg := store.AddMessage("c1", models.RoleAssistant, "")

	for _, delta := range []string{"Hel", "lo", ", world"} {
		if !store.AppendMessageContent("c1", msg, delta) {
			t.Fatalf("AppendMessageContent(%q) dropped", delta)
		}
	}
	if msg.Content != "Hello, world" {
		t.Errorf("Content = %q, want %q", msg.Content, "Hello, world")
	}

	// Empty deltas change neither content nor recency.
	before := store.Conversation("c1").UpdateTime
	if !store.AppendMessageContent("c1", msg, "") {
		t.Error("empty delta should be an accepted no-op")
	}
	if msg.Content != "Hello, world" {
		t.Error("empty delta changed content")
	}
	if !store.Conversation("c1").UpdateTime.Equal(before) {
		t.Error("empty delta advanced UpdateTime")
	}

	if store.AppendMessageContent("ghost", msg, "x") {
		t.Error("delta for a missing conversation should be dropped")
	}
}

func TestAppendTitle(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, nil)
	seedConversations(t, store, backend, "c1")

	store.SetTitle("c1", "")
	store.AppendTitle("c1", "Greet")
	store.AppendTitle("c1", "ings")
	if got := store.Conversation("c1").Title; got != "Greetings" {
		t.Errorf("Title = %q, want %q", got, "Greetings")
	}
	if store.AppendTitle("ghost", "x") {
		t.Error("title delta for a missing conversation should be dropped")
	}
}

func TestSortedConversationsStableRecencyOrder(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, nil)
	// Seeded via the list endpoint so every UpdateTime is identical.
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.summaries = []models.ConversationSummary{
		{ID: "c1", Title: "one", UpdateTime: now},
		{ID: "c2", Title: "two", UpdateTime: now},
		{ID: "c3", Title: "three", UpdateTime: now},
	}
	if err := store.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}

	sorted := store.SortedConversations()
	for i, want := range []string{"c1", "c2", "c3"} {
		if sorted[i].ID != want {
			t.Fatalf("ties must keep collection order, got %s at %d", sorted[i].ID, i)
		}
	}

	// Touching a non-top conversation moves it to the front on next read.
	store.AddMessage("c3", models.RoleUser, "bump")
	sorted = store.SortedConversations()
	if sorted[0].ID != "c3" {
		t.Errorf("most recently updated should sort first, got %s", sorted[0].ID)
	}
}

func TestLoadConversationsReplacesCollection(t *testing.T) {
	backend := &mockBackend{}
	store := newStore(t, backend, nil)
	seedConversations(t, store, backend, "old")
	store.AddMessage("old", models.RoleUser, "hi")

	backend.summaries = []models.ConversationSummary{
		{ID: "old", Title: "kept"},
		{ID: "new", Title: "fresh"},
	}
	if err := store.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := len(store.SortedConversations()); got != 2 {
		t.Fatalf("conversation count = %d, want 2", got)
	}
	// Message bodies are discarded; they load lazily per conversation.
	if got := store.MessageCount("old"); got != 0 {
		t.Errorf("MessageCount() = %d, want 0 after reload", got)
	}

	backend.listErr = errors.New("backend down")
	if err := store.LoadConversations(context.Background()); err == nil {
		t.Fatal("LoadConversations() error = nil, want error")
	}
	if got := len(store.SortedConversations()); got != 2 {
		t.Error("failed reload must leave the collection untouched")
	}
}

func TestLoadMessages(t *testing.T) {
	backend := &mockBackend{
		messages: map[string][]models.Message{
			"c1": {
				{ID: "m1", ConversationID: "c1", Role: models.RoleUser, Content: "hi"},
				{ID: "m2", ConversationID: "c1", Role: models.RoleAssistant, Content: "hello"},
			},
		},
	}
	store := newStore(t, backend, nil)
	seedConversations(t, store, backend, "c1")
	store.AddMessage("c1", models.RoleUser, "stale")

	if err := store.LoadMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	messages := store.Conversation("c1").Messages
	if len(messages) != 2 || messages[0].ID != "m1" || messages[1].Content != "hello" {
		t.Errorf("messages not replaced wholesale: %+v", messages)
	}

	// Unknown conversation is a no-op, not an error.
	if err := store.LoadMessages(context.Background(), "ghost"); err != nil {
		t.Errorf("LoadMessages() on unknown conversation error = %v", err)
	}
}

func TestUploadFileIDs(t *testing.T) {
	store := newStore(t, &mockBackend{}, nil)

	store.AddUploadFileID("f1")
	store.AddUploadFileID("f2")
	store.RemoveUploadFileID("f1")

	ids := store.UploadFileIDs()
	if len(ids) != 1 || ids[0] != "f2" {
		t.Errorf("UploadFileIDs() = %v, want [f2]", ids)
	}
}

func seedConversations(t *testing.T, store *chat.Store, backend *mockBackend, ids ...string) {
	t.Helper()
	for _, id := range ids {
		backend.nextID = id
		if _, err := store.CreateConversation(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	store.SetActive("")
}
