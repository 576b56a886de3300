package export_test

import (
	"strings"
	"testing"
	"time"

	"github.com/javachat/javachat-cli/internal/export"
	"github.com/javachat/javachat-cli/internal/models"
)

func newRenderer(t *testing.T) export.Renderer {
	t.Helper()
	renderer, err := export.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return renderer
}

func conversation(title string, messages ...*models.Message) *models.Conversation {
	return &models.Conversation{
		ID:         "c1",
		Title:      title,
		Messages:   messages,
		CreateTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdateTime: time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC),
	}
}

func message(role models.Role, content string) *models.Message {
	return &models.Message{ConversationID: "c1", Role: role, Content: content}
}

func TestTranscriptRendersMarkdown(t *testing.T) {
	renderer := newRenderer(t)
	conv := conversation("Code review",
		message(models.RoleUser, "show me **bold** text"),
		message(models.RoleAssistant, "```go\nfmt.Println(\"hi\")\n```"),
	)

	var buf strings.Builder
	if err := renderer.Transcript(&buf, conv); err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Code review") {
		t.Error("output missing conversation title")
	}
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Error("markdown emphasis not rendered")
	}
	// The fenced block goes through syntax highlighting, which wraps tokens in
	// styled spans rather than a plain <pre><code> dump.
	if !strings.Contains(out, "Println") {
		t.Error("code block content missing")
	}
	if !strings.Contains(out, "<span") {
		t.Error("code block not highlighted")
	}
}

func TestTranscriptEscapesRawHTMLInContent(t *testing.T) {
	renderer := newRenderer(t)
	conv := conversation("Injection",
		message(models.RoleUser, "<script>alert(1)</script>"),
	)

	var buf strings.Builder
	if err := renderer.Transcript(&buf, conv); err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if strings.Contains(buf.String(), "<script>alert(1)</script>") {
		t.Error("raw HTML from message content must not reach the document unescaped")
	}
}

func TestTranscriptFallsBackToDefaultTitle(t *testing.T) {
	renderer := newRenderer(t)
	conv := conversation("", message(models.RoleUser, "hi"))

	var buf strings.Builder
	if err := renderer.Transcript(&buf, conv); err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if !strings.Contains(buf.String(), models.DefaultTitle) {
		t.Errorf("output missing fallback title %q", models.DefaultTitle)
	}
}

func TestTranscriptRejectsNilConversation(t *testing.T) {
	renderer := newRenderer(t)
	if err := renderer.Transcript(&strings.Builder{}, nil); err == nil {
		t.Error("Transcript(nil) error = nil, want error")
	}
}
