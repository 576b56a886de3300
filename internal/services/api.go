package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/javachat/javachat-cli/internal/models"
)

// Client talks to the javachat REST backend for conversation CRUD and
// conversation/message listing. It implements the chat.Backend interface.
type Client struct {
	baseURL string

	client *http.Client

	logger *slog.Logger
}

// Every REST response is wrapped in the backend's envelope; a non-zero code
// means the request was understood but rejected.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates a Client for the backend at the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With(slog.String("module", "api")),
	}
}

// NewConversationID obtains a fresh conversation identity from the backend.
func (c *Client) NewConversationID(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/conversation/id")
	if err != nil {
		return "", err
	}

	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("error unmarshaling conversation id: %w", err)
	}
	return id, nil
}

// DeleteConversation deletes a conversation on the backend.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/conversation/"+url.PathEscape(id))
	return err
}

// Conversations fetches the conversation summaries, message bodies excluded.
func (c *Client) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	data, err := c.do(ctx, http.MethodGet, "/conversation/list")
	if err != nil {
		return nil, err
	}

	var summaries []models.ConversationSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, fmt.Errorf("error unmarshaling conversation list: %w", err)
	}
	return summaries, nil
}

// Messages fetches the ordered message sequence of a conversation.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	data, err := c.do(ctx, http.MethodGet, "/message/list/"+url.PathEscape(conversationID))
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("error unmarshaling message list: %w", err)
	}
	return messages, nil
}

func (c *Client) do(ctx context.Context, method, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %s for %s %s", resp.Status, method, path)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("backend error %d: %s", envelope.Code, envelope.Message)
	}

	c.logger.Debug("Request succeeded", slog.String("method", method), slog.String("path", path))
	return envelope.Data, nil
}
