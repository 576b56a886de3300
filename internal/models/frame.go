package models

// FrameType discriminates the streaming protocol frames.
type FrameType string

const (
	// FrameMeta carries backend-assigned identities to backfill into the
	// placeholder assistant message and, optionally, the user message.
	FrameMeta FrameType = "meta"
	// FrameDelta carries incremental text to append.
	FrameDelta FrameType = "delta"
	// FrameDone is the terminal signal; the client should close the stream.
	FrameDone FrameType = "done"
)

// Frame is one discrete unit of the streaming protocol, decoded from the data
// payload of a single server-sent event.
type Frame struct {
	Type          FrameType `json:"type"`
	MessageID     string    `json:"messageId,omitempty"`
	UserMessageID string    `json:"userMessageId,omitempty"`
	Content       string    `json:"content,omitempty"`
}

// ReplyRequest is the body of the stream-opening request for an assistant
// reply generation.
type ReplyRequest struct {
	ConversationID string   `json:"conversationId"`
	Prompt         string   `json:"prompt"`
	UploadFileIDs  []string `json:"uploadFileIds,omitempty"`
}

// TitleRequest is the body of the stream-opening request for a conversation
// title generation.
type TitleRequest struct {
	ConversationID string `json:"conversationId"`
}
