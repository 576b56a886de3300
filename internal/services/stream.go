package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/javachat/javachat-cli/internal/models"
	"github.com/tmaxmax/go-sse"
)

// StreamClient opens streamed generation exchanges against the javachat
// backend over server-sent events. It implements the chat.Streamer interface.
type StreamClient struct {
	baseURL string

	client *http.Client

	logger *slog.Logger
}

// NewStreamClient creates a StreamClient for the backend at the given base
// URL. The underlying HTTP client carries no timeout; a streamed exchange
// ends only through a done frame, a transport error, or context cancellation.
func NewStreamClient(baseURL string, logger *slog.Logger) *StreamClient {
	return &StreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "stream")),
	}
}

// StreamReply opens a reply generation stream and yields its frames in
// arrival order.
func (s *StreamClient) StreamReply(ctx context.Context, req models.ReplyRequest) iter.Seq2[models.Frame, error] {
	return s.stream(ctx, "/chat", req)
}

// StreamTitle opens a title generation stream and yields its frames in
// arrival order.
func (s *StreamClient) StreamTitle(ctx context.Context, req models.TitleRequest) iter.Seq2[models.Frame, error] {
	return s.stream(ctx, "/chat/title", req)
}

// stream POSTs the request body and reads one frame per server-sent event.
// Events whose data does not parse as a frame are dropped and logged, never
// fatal to the session. Context cancellation ends the iteration cleanly.
func (s *StreamClient) stream(ctx context.Context, path string, body any) iter.Seq2[models.Frame, error] {
	return func(yield func(models.Frame, error) bool) {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			yield(models.Frame{}, fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			yield(models.Frame{}, fmt.Errorf("error creating request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-store")

		resp, err := s.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(models.Frame{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(models.Frame{}, fmt.Errorf("unexpected status %s", resp.Status))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield(models.Frame{}, fmt.Errorf("error reading response: %w", err))
				return
			}

			var frame models.Frame
			if err := json.Unmarshal([]byte(ev.Data), &frame); err != nil {
				s.logger.Warn("Dropping malformed frame",
					slog.String("data", ev.Data),
					slog.String("err", err.Error()))
				continue
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}
