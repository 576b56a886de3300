package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/javachat/javachat-cli/internal/models"
)

// Backend defines the REST collaborator the store talks to for conversation
// identity, deletion, and lazy loading of conversation and message lists.
type Backend interface {
	NewConversationID(ctx context.Context) (string, error)
	DeleteConversation(ctx context.Context, id string) error
	Conversations(ctx context.Context) ([]models.ConversationSummary, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// IDStrategy decides how message identities are assigned at creation time.
type IDStrategy interface {
	MessageID() string
}

// LocalIDs generates message identities client-side. Conversations created
// under this strategy never wait for a meta frame to become addressable.
type LocalIDs struct{}

// MessageID returns a fresh client-generated identity.
func (LocalIDs) MessageID() string { return uuid.New().String() }

// BackendIDs leaves message identities empty until the backend assigns them
// asynchronously through a meta frame.
type BackendIDs struct{}

// MessageID returns the empty placeholder identity.
func (BackendIDs) MessageID() string { return "" }

// Store owns the in-memory collection of conversations and their messages,
// the conversation selection, and the derived views over both. It is the only
// shared mutable state in the system; every mutation goes through its lock so
// that all observers see a single source of truth.
type Store struct {
	mu            sync.RWMutex
	conversations []*models.Conversation
	activeID      string
	uploadFileIDs []string
	sidebarOpen   bool

	backend Backend
	ids     IDStrategy
	now     func() time.Time
	logger  *slog.Logger
}

// StoreOption customizes a Store on creation.
type StoreOption func(*Store)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store backed by the given REST collaborator. A nil
// identity strategy defaults to backend-assigned identities.
func NewStore(backend Backend, ids IDStrategy, logger *slog.Logger, options ...StoreOption) *Store {
	s := &Store{
		backend:     backend,
		ids:         ids,
		now:         time.Now,
		sidebarOpen: true,
		logger:      logger.With(slog.String("module", "store")),
	}
	if s.ids == nil {
		s.ids = BackendIDs{}
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// LoadConversations fetches conversation summaries from the backend and
// replaces the local collection wholesale. Message bodies are discarded and
// loaded lazily per conversation through LoadMessages. The collection is left
// untouched if the backend call fails.
func (s *Store) LoadConversations(ctx context.Context) error {
	summaries, err := s.backend.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	conversations := make([]*models.Conversation, len(summaries))
	for i, sum := range summaries {
		conversations[i] = &models.Conversation{
			ID:         sum.ID,
			Title:      sum.Title,
			Messages:   []*models.Message{},
			CreateTime: sum.CreateTime,
			UpdateTime: sum.UpdateTime,
		}
	}

	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()
	return nil
}

// CreateConversation obtains a fresh identity from the backend, inserts an
// empty conversation at the front of the collection, and marks it active.
func (s *Store) CreateConversation(ctx context.Context) (string, error) {
	id, err := s.backend.NewConversationID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire conversation id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conversation := &models.Conversation{
		ID:         id,
		Title:      models.DefaultTitle,
		Messages:   []*models.Message{},
		CreateTime: now,
		UpdateTime: now,
	}
	s.conversations = append([]*models.Conversation{conversation}, s.conversations...)
	s.activeID = id

	s.logger.Debug("Created conversation", slog.String("conversationID", id))
	return id, nil
}

// SetActive changes the conversation selection. The empty string selects
// none. The id is not validated; selecting an unknown id simply yields a nil
// active-conversation view.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

// ActiveID returns the id of the selected conversation, or the empty string.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// DeleteConversation requests deletion from the backend, then removes the
// conversation locally. The local collection is left untouched if the backend
// call fails. Deleting the active conversation re-selects the first remaining
// conversation in collection order, or none.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.conversations, func(c *models.Conversation) bool { return c.ID == id })
	if idx == -1 {
		return nil
	}
	s.conversations = slices.Delete(s.conversations, idx, idx+1)
	if s.activeID == id {
		s.activeID = ""
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		}
	}
	return nil
}

// LoadMessages fetches the message sequence for a conversation and replaces
// that conversation's messages wholesale. It is a no-op if the conversation
// is not present locally.
func (s *Store) LoadMessages(ctx context.Context, conversationID string) error {
	messages, err := s.backend.Messages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := s.find(conversationID)
	if conversation == nil {
		return nil
	}
	conversation.Messages = make([]*models.Message, len(messages))
	for i := range messages {
		msg := messages[i]
		conversation.Messages[i] = &msg
	}
	return nil
}

// AddMessage appends a new message to the named conversation and advances its
// UpdateTime. It returns a stable handle to the created message so streamed
// content can later be appended to it in place, or nil if the conversation
// does not exist.
func (s *Store) AddMessage(conversationID string, role models.Role, content string) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := s.find(conversationID)
	if conversation == nil {
		return nil
	}

	now := s.now()
	message := &models.Message{
		ID:             s.ids.MessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreateTime:     now,
	}
	conversation.Messages = append(conversation.Messages, message)
	conversation.UpdateTime = now
	return message
}

// AppendMessageContent appends a streamed delta to a message created through
// AddMessage and advances the owning conversation's UpdateTime. It reports
// whether the delta was applied; deltas for a conversation that is no longer
// present are silently dropped, and empty deltas change nothing.
func (s *Store) AppendMessageContent(conversationID string, message *models.Message, delta string) bool {
	if delta == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := s.find(conversationID)
	if conversation == nil {
		return false
	}
	message.Content += delta
	conversation.UpdateTime = s.now()
	return true
}

// AppendTitle appends a streamed delta to a conversation's title and advances
// its UpdateTime. Deltas for an absent conversation are silently dropped, and
// empty deltas change nothing.
func (s *Store) AppendTitle(conversationID, delta string) bool {
	if delta == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := s.find(conversationID)
	if conversation == nil {
		return false
	}
	conversation.Title += delta
	conversation.UpdateTime = s.now()
	return true
}

// SetTitle replaces a conversation's title outright, without touching its
// UpdateTime. It is a no-op if the conversation is not present.
func (s *Store) SetTitle(conversationID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversation := s.find(conversationID); conversation != nil {
		conversation.Title = title
	}
}

// SetMessageID backfills a backend-assigned identity into a message. This is
// the only mutation of a message's ID after creation. Empty ids are ignored.
func (s *Store) SetMessageID(message *models.Message, id string) {
	if message == nil || id == "" {
		return
	}
	s.mu.Lock()
	message.ID = id
	s.mu.Unlock()
}

// ActiveConversation returns the conversation matching the active id, or nil.
func (s *Store) ActiveConversation() *models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return nil
	}
	return s.find(s.activeID)
}

// Conversation returns the conversation with the given id, or nil.
func (s *Store) Conversation(id string) *models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

// MessageCount returns the number of messages held locally for a
// conversation, or zero if it is not present.
func (s *Store) MessageCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation := s.find(conversationID)
	if conversation == nil {
		return 0
	}
	return len(conversation.Messages)
}

// SortedConversations returns all conversations ordered by UpdateTime
// descending. The sort is stable, so ties keep the original collection order.
func (s *Store) SortedConversations() []*models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := slices.Clone(s.conversations)
	slices.SortStableFunc(sorted, func(a, b *models.Conversation) int {
		return b.UpdateTime.Compare(a.UpdateTime)
	})
	return sorted
}

// AddUploadFileID records an uploaded file id to attach to the next reply
// request.
func (s *Store) AddUploadFileID(id string) {
	s.mu.Lock()
	s.uploadFileIDs = append(s.uploadFileIDs, id)
	s.mu.Unlock()
}

// RemoveUploadFileID removes a previously recorded upload file id.
func (s *Store) RemoveUploadFileID(id string) {
	s.mu.Lock()
	s.uploadFileIDs = slices.DeleteFunc(s.uploadFileIDs, func(v string) bool { return v == id })
	s.mu.Unlock()
}

// UploadFileIDs returns a copy of the recorded upload file ids.
func (s *Store) UploadFileIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.uploadFileIDs)
}

// SidebarOpen reports whether the conversation sidebar is open.
func (s *Store) SidebarOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sidebarOpen
}

// ToggleSidebar flips the sidebar state and returns the new value.
func (s *Store) ToggleSidebar() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidebarOpen = !s.sidebarOpen
	return s.sidebarOpen
}

// find must be called with the lock held.
func (s *Store) find(id string) *models.Conversation {
	idx := slices.IndexFunc(s.conversations, func(c *models.Conversation) bool { return c.ID == id })
	if idx == -1 {
		return nil
	}
	return s.conversations[idx]
}
