package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/javachat/javachat-cli/internal/models"
)

// Streamer opens one streamed generation exchange against the backend and
// yields its protocol frames in arrival order. The returned iterator stops
// cleanly when the context is cancelled.
type Streamer interface {
	StreamReply(ctx context.Context, req models.ReplyRequest) iter.Seq2[models.Frame, error]
	StreamTitle(ctx context.Context, req models.TitleRequest) iter.Seq2[models.Frame, error]
}

// session is the exclusivity handle of one streamed generation. At most one
// session is ever allowed to mutate store state; a session that is no longer
// the controller's current one applies nothing, including its own
// finalization.
type session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	completed bool
}

// Controller runs at most one streamed generation at a time and reconciles
// its protocol frames into store state. Reply generation and title generation
// share the same exclusivity handle, so starting either one first cancels
// whatever is live.
type Controller struct {
	store    *Store
	streamer Streamer
	logger   *slog.Logger

	mu         sync.Mutex
	current    *session
	generating bool

	onDelta          func(delta string)
	onReplyCompleted func(conversationID string)
}

// ControllerOption customizes a Controller on creation.
type ControllerOption func(*Controller)

// WithDeltaFunc registers a callback invoked for every applied reply delta,
// outside the controller lock. UI front ends use it to render streamed text
// as it arrives.
func WithDeltaFunc(fn func(delta string)) ControllerOption {
	return func(c *Controller) {
		c.onDelta = fn
	}
}

// WithReplyCompletedHook replaces the hook run after a reply session reaches
// its completed state. The default hook chains an automatic title generation
// when the conversation has just gained its first user/assistant pair.
func WithReplyCompletedHook(fn func(conversationID string)) ControllerOption {
	return func(c *Controller) {
		c.onReplyCompleted = fn
	}
}

// NewController creates a Controller mutating the given store through frames
// received from the given streamer.
func NewController(store *Store, streamer Streamer, logger *slog.Logger, options ...ControllerOption) *Controller {
	c := &Controller{
		store:    store,
		streamer: streamer,
		logger:   logger.With(slog.String("module", "controller")),
	}
	c.onReplyCompleted = c.autoTitle
	for _, option := range options {
		option(c)
	}
	return c
}

// SendMessage starts a reply generation for the given user content. Any live
// generation is cancelled first. If no conversation is active, one is created
// through the store. The returned channel closes once the session, including
// a chained title generation, reaches a terminal state.
func (c *Controller) SendMessage(ctx context.Context, content string) (<-chan struct{}, error) {
	c.CancelGeneration()

	conversationID := c.store.ActiveID()
	if conversationID == "" {
		id, err := c.store.CreateConversation(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = id
	}

	userMsg := c.store.AddMessage(conversationID, models.RoleUser, content)
	assistantMsg := c.store.AddMessage(conversationID, models.RoleAssistant, "")
	if assistantMsg == nil {
		return nil, fmt.Errorf("conversation %s is not present", conversationID)
	}

	req := models.ReplyRequest{
		ConversationID: conversationID,
		Prompt:         content,
		UploadFileIDs:  c.store.UploadFileIDs(),
	}
	s := c.startSession(ctx, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if c.runReply(s, req, userMsg, assistantMsg) {
			if hook := c.onReplyCompleted; hook != nil {
				hook(conversationID)
			}
		}
	}()
	return done, nil
}

// GenerateTitle starts a title generation for the active conversation,
// cancelling any live generation first. Without an active conversation it is
// a no-op and the returned channel is already closed.
func (c *Controller) GenerateTitle(ctx context.Context) (<-chan struct{}, error) {
	done := make(chan struct{})

	conversationID := c.store.ActiveID()
	if conversationID == "" {
		close(done)
		return done, nil
	}

	c.CancelGeneration()
	s := c.startSession(ctx, false)

	go func() {
		defer close(done)
		c.runTitle(s, conversationID)
	}()
	return done, nil
}

// CancelGeneration invalidates the current session synchronously; the
// underlying transport close is best-effort. Partial content streamed so far
// is kept.
func (c *Controller) CancelGeneration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.generating = false
}

// Generating reports whether a reply generation is in flight.
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// startSession installs a fresh exclusivity handle, cancelling whichever
// session held it before. The session context is detached from the caller's
// cancellation so a generation keeps streaming while the front end is busy
// elsewhere; it ends only on a done frame, a transport error, or an explicit
// cancel.
func (c *Controller) startSession(ctx context.Context, generating bool) *session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{ctx: sctx, cancel: cancel}

	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
	}
	c.current = s
	c.generating = generating
	c.mu.Unlock()
	return s
}

// finish releases the exclusivity handle, but only if it still refers to the
// finalizing session. A newer session may have already taken ownership, and a
// stale finalization must never clobber its lock or flags.
func (c *Controller) finish(s *session) {
	s.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
		c.generating = false
	}
}

// runReply drives one reply session from its stream opening to a terminal
// state and reports whether it completed through a done frame.
func (c *Controller) runReply(s *session, req models.ReplyRequest, userMsg, assistantMsg *models.Message) bool {
	defer c.finish(s)

	for frame, err := range c.streamer.StreamReply(s.ctx, req) {
		if err != nil {
			if errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
				return s.completed
			}
			c.failReply(s, req.ConversationID, assistantMsg, err)
			return false
		}

		delta, ok := c.applyReplyFrame(s, req.ConversationID, userMsg, assistantMsg, frame)
		if !ok {
			return false
		}
		if delta != "" && c.onDelta != nil {
			c.onDelta(delta)
		}
		if s.completed {
			return true
		}
	}
	return s.completed
}

// applyReplyFrame reconciles one frame into store state. It returns the
// applied delta, if any, and reports whether the session is still the current
// one; a stale session applies nothing.
func (c *Controller) applyReplyFrame(
	s *session,
	conversationID string,
	userMsg, assistantMsg *models.Message,
	frame models.Frame,
) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s {
		return "", false
	}

	switch frame.Type {
	case models.FrameMeta:
		c.store.SetMessageID(assistantMsg, frame.MessageID)
		c.store.SetMessageID(userMsg, frame.UserMessageID)
	case models.FrameDelta:
		if c.store.AppendMessageContent(conversationID, assistantMsg, frame.Content) {
			return frame.Content, true
		}
		c.logger.Debug("Dropped delta for missing conversation",
			slog.String("conversationID", conversationID))
	case models.FrameDone:
		// The terminal frame is a self-signal; close the transport proactively.
		s.cancel()
		s.completed = true
	default:
		c.logger.Debug("Ignoring unknown frame type", slog.String("type", string(frame.Type)))
	}
	return "", true
}

// failReply records a transport failure as an inline note on the assistant
// message, unless a newer session owns the state by now.
func (c *Controller) failReply(s *session, conversationID string, assistantMsg *models.Message, err error) {
	c.logger.Error("Reply generation failed",
		slog.String("conversationID", conversationID),
		slog.String("err", err.Error()))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s {
		return
	}
	c.store.AppendMessageContent(conversationID, assistantMsg, fmt.Sprintf("\n\n[request failed] %v", err))
}

// runTitle drives one title session. The old title is cleared up front and
// rebuilt from streamed deltas; on failure it reverts to the placeholder.
func (c *Controller) runTitle(s *session, conversationID string) {
	defer c.finish(s)

	if !c.clearTitle(s, conversationID) {
		return
	}

	req := models.TitleRequest{ConversationID: conversationID}
	for frame, err := range c.streamer.StreamTitle(s.ctx, req) {
		if err != nil {
			if errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
				return
			}
			c.failTitle(s, conversationID, err)
			return
		}
		if !c.applyTitleFrame(s, conversationID, frame) {
			return
		}
		if s.completed {
			return
		}
	}
}

func (c *Controller) clearTitle(s *session, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s {
		return false
	}
	c.store.SetTitle(conversationID, "")
	return true
}

// applyTitleFrame reconciles one title frame. The title flow has no
// identities to backfill, so meta frames are ignored alongside unknown types.
func (c *Controller) applyTitleFrame(s *session, conversationID string, frame models.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s {
		return false
	}

	switch frame.Type {
	case models.FrameDelta:
		if !c.store.AppendTitle(conversationID, frame.Content) {
			c.logger.Debug("Dropped title delta for missing conversation",
				slog.String("conversationID", conversationID))
		}
	case models.FrameDone:
		s.cancel()
		s.completed = true
	default:
	}
	return true
}

func (c *Controller) failTitle(s *session, conversationID string, err error) {
	c.logger.Error("Title generation failed",
		slog.String("conversationID", conversationID),
		slog.String("err", err.Error()))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s {
		return
	}
	c.store.SetTitle(conversationID, models.DefaultTitle)
}

// autoTitle is the default reply-completed hook. Once a conversation has
// gained exactly its first user/assistant pair, it chains a title generation
// through the same exclusivity mechanism. The reply session has already
// released its handle by the time the hook runs, so the title session does
// not cancel a live reply.
func (c *Controller) autoTitle(conversationID string) {
	if c.store.MessageCount(conversationID) != 2 {
		return
	}
	s := c.startSession(context.Background(), false)
	c.runTitle(s, conversationID)
}
