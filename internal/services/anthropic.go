package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Anthropic answers chat messages directly from the Anthropic messages API. The answer is streamed
// and collected into a single reply; the conversation is kept in memory until Reset.
type Anthropic struct {
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int
	endpoint     string

	client *http.Client

	mu      sync.Mutex
	history []anthropicMessage
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
)

// NewAnthropic creates a new Anthropic instance with the specified API key, model name, and maximum
// token limit. An empty endpoint uses the public API.
func NewAnthropic(apiKey, endpoint, model, systemPrompt string, maxTokens int) *Anthropic {
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	return &Anthropic{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		endpoint:     strings.TrimRight(endpoint, "/"),
		client:       &http.Client{},
	}
}

// Chat streams the answer to message and returns it once the stream stops.
func (a *Anthropic) Chat(ctx context.Context, message string) (models.Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user := anthropicMessage{Role: "user", Content: message}
	reqBody := anthropicChatRequest{
		Model:     a.model,
		Messages:  append(slices.Clone(a.history), user),
		Stream:    true,
		System:    a.systemPrompt,
		MaxTokens: a.maxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return models.Reply{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return models.Reply{}, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return models.Reply{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	var sb strings.Builder
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			return models.Reply{}, fmt.Errorf("error reading response: %w", err)
		}
		switch ev.Type {
		case "error":
			var e anthropicError
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
				return models.Reply{}, fmt.Errorf("error unmarshaling error: %w", err)
			}
			return models.Reply{}, fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message)
		case "content_block_delta":
			var res anthropicStreamResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				return models.Reply{}, fmt.Errorf("error unmarshaling response: %w", err)
			}
			sb.WriteString(res.Delta.Text)
		}
		if ev.Type == "message_stop" {
			break
		}
	}

	answer := sb.String()
	if answer != "" {
		a.history = append(a.history, user, anthropicMessage{Role: "assistant", Content: answer})
	}
	return models.Reply{Response: answer}, nil
}

// Reset forgets the conversation history.
func (a *Anthropic) Reset(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = nil
	return nil
}
