package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama answers chat messages directly from an Ollama model instead of a widget backend. It keeps
// the conversation in memory so follow-up questions have context; Reset forgets it. Replies carry no
// intent and no confidence.
type Ollama struct {
	model        string
	systemPrompt string

	client *api.Client

	mu      sync.Mutex
	history []api.Message
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model, systemPrompt string) (*Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return &Ollama{
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}, nil
}

// Chat sends message with the conversation so far and returns the full answer. The exchange is
// added to the history only when the model answered.
func (o *Ollama) Chat(ctx context.Context, message string) (models.Reply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := slices.Clone(o.history)
	msgs = append(msgs, api.Message{Role: "user", Content: message})
	if o.systemPrompt != "" {
		msgs = slices.Insert(msgs, 0, api.Message{Role: "system", Content: o.systemPrompt})
	}

	f := false
	req := api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &f,
	}

	var sb strings.Builder
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		sb.WriteString(res.Message.Content)
		return nil
	}); err != nil {
		return models.Reply{}, fmt.Errorf("error sending request: %w", err)
	}

	answer := sb.String()
	if answer != "" {
		o.history = append(o.history,
			api.Message{Role: "user", Content: message},
			api.Message{Role: "assistant", Content: answer},
		)
	}
	return models.Reply{Response: answer}, nil
}

// Reset forgets the conversation history.
func (o *Ollama) Reset(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.history = nil
	return nil
}
