package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// DefaultAssistantName is the header shown above every bot message.
const DefaultAssistantName = "Internship Assistant"

// TypingIndicatorID is the element id of the transient typing placeholder.
const TypingIndicatorID = "typingIndicator"

// Renderer maps messages to HTML fragments using the message partials from the embedded templates.
type Renderer struct {
	templates     *template.Template
	markdown      goldmark.Markdown
	assistantName string
}

type userMessage struct {
	ID   string
	Body template.HTML
}

type botMessage struct {
	ID             string
	AssistantName  string
	Tier           string
	Intent         string
	Badge          string
	Body           template.HTML
	ConfidenceNote string
}

type typingIndicator struct {
	ID            string
	AssistantName string
}

// NewRenderer parses the partial templates from fsys. An empty assistantName falls back to
// DefaultAssistantName.
func NewRenderer(fsys fs.FS, assistantName string) (Renderer, error) {
	tmpl, err := template.ParseFS(fsys, "templates/partials/*.html")
	if err != nil {
		return Renderer{}, fmt.Errorf("failed to parse partials: %w", err)
	}
	if assistantName == "" {
		assistantName = DefaultAssistantName
	}

	return Renderer{
		templates: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(highlighting.NewHighlighting(highlighting.WithStyle("github"))),
		),
		assistantName: assistantName,
	}, nil
}

// AssistantName returns the header used for bot messages.
func (r Renderer) AssistantName() string {
	return r.assistantName
}

// Render maps msg to its HTML fragment. User text is escaped and left unformatted; bot text goes
// through FormatMessage without escaping and carries the intent badge, the confidence tier and the
// low-confidence annotation.
func (r Renderer) Render(msg models.Message) (template.HTML, error) {
	if msg.Sender == models.SenderUser {
		return r.execute("user_message", userMessage{
			ID:   msg.ID,
			Body: template.HTML(EscapeHTML(msg.Text)),
		})
	}

	data := botMessage{
		ID:            msg.ID,
		AssistantName: r.assistantName,
		Body:          template.HTML(FormatMessage(msg.Text)),
	}
	if ShowsBadge(msg.Intent) {
		data.Intent = msg.Intent
		data.Badge = FormatIntent(msg.Intent)
	}
	if msg.Confidence != nil {
		data.Tier = ConfidenceTier(*msg.Confidence)
		data.ConfidenceNote = ConfidenceNote(*msg.Confidence)
	}
	return r.execute("bot_message", data)
}

// TypingIndicator renders the transient placeholder shown while a reply is pending.
func (r Renderer) TypingIndicator() (template.HTML, error) {
	return r.execute("typing_indicator", typingIndicator{
		ID:            TypingIndicatorID,
		AssistantName: r.assistantName,
	})
}

// Welcome renders the welcome message, written in Markdown, as the first bot message of the page.
func (r Renderer) Welcome(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert welcome markdown: %w", err)
	}
	return r.execute("welcome_message", botMessage{
		AssistantName: r.assistantName,
		Body:          template.HTML(buf.String()),
	})
}

func (r Renderer) execute(name string, data any) (template.HTML, error) {
	var sb strings.Builder
	if err := r.templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return template.HTML(sb.String()), nil
}
