package models

import "time"

// Conversation is a titled, ordered sequence of messages. Messages are held as
// pointers so that the handle returned when a message is created stays valid
// while streamed content is appended to it in place.
type Conversation struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Messages   []*Message `json:"messages"`
	CreateTime time.Time  `json:"createTime"`
	UpdateTime time.Time  `json:"updateTime"`
}

// ConversationSummary is the shape returned by the conversation list endpoint,
// which excludes message bodies.
type ConversationSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

// Message represents an individual communication entry within a conversation.
// ID may be empty until the backend assigns one asynchronously through a meta
// frame; CreateTime is set once at creation and never mutated.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreateTime     time.Time `json:"createTime"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message. An assistant message under
	// active generation grows monotonically by append-only deltas.
	RoleAssistant Role = "assistant"
)

// DefaultTitle is the placeholder label a conversation carries until a
// generated title replaces it, and the fallback when title generation fails.
const DefaultTitle = "New conversation"
