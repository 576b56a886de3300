// Package export renders conversation transcripts to standalone HTML files.
// It consumes the data model but never shapes it.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	javachat "github.com/javachat/javachat-cli"
	"github.com/javachat/javachat-cli/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts message markdown to HTML and wraps a whole conversation
// in the embedded transcript page template.
type Renderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

type transcriptMessage struct {
	Role       models.Role
	Content    template.HTML
	CreateTime time.Time
}

type transcriptData struct {
	Title    string
	Exported time.Time
	Messages []transcriptMessage
}

// NewRenderer parses the embedded templates and configures the markdown
// converter with GitHub-flavored extensions and fenced code highlighting.
func NewRenderer() (Renderer, error) {
	tmpl, err := template.ParseFS(javachat.TemplateFS, "templates/*.html")
	if err != nil {
		return Renderer{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
	)

	return Renderer{md: md, tmpl: tmpl}, nil
}

// Transcript writes the conversation as a standalone HTML page. Message
// content is rendered as markdown; a message that fails to render falls back
// to its raw text.
func (r Renderer) Transcript(w io.Writer, conversation *models.Conversation) error {
	if conversation == nil {
		return fmt.Errorf("no conversation to export")
	}

	title := conversation.Title
	if title == "" {
		title = models.DefaultTitle
	}

	data := transcriptData{
		Title:    title,
		Exported: time.Now(),
		Messages: make([]transcriptMessage, len(conversation.Messages)),
	}
	for i, msg := range conversation.Messages {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(msg.Content), &buf); err != nil {
			buf.Reset()
			buf.WriteString(template.HTMLEscapeString(msg.Content))
		}
		data.Messages[i] = transcriptMessage{
			Role:       msg.Role,
			Content:    template.HTML(buf.String()), //nolint:gosec // goldmark output, or escaped fallback
			CreateTime: msg.CreateTime,
		}
	}

	return r.tmpl.ExecuteTemplate(w, "transcript.html", data)
}
