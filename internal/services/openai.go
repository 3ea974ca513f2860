package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI answers chat messages directly from an OpenAI-compatible chat completion API. It asks for
// token log probabilities and reports their geometric mean as the reply confidence.
type OpenAI struct {
	model        string
	systemPrompt string

	client *goopenai.Client

	logger *slog.Logger

	mu      sync.Mutex
	history []goopenai.ChatCompletionMessage
}

// NewOpenAI creates a new OpenAI instance. An empty baseURL uses the official endpoint; any other
// value points the client at a compatible server such as OpenRouter.
func NewOpenAI(apiKey, baseURL, model, systemPrompt string, logger *slog.Logger) *OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		client:       goopenai.NewClientWithConfig(cfg),
		logger:       logger.With(slog.String("module", "openai")),
	}
}

// Chat is a wrapper around the OpenAI chat completion API.
func (o *OpenAI) Chat(ctx context.Context, message string) (models.Reply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: message,
	}
	msgs := append(slices.Clone(o.history), user)
	if o.systemPrompt != "" {
		msgs = slices.Insert(msgs, 0, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
		LogProbs: true,
	})
	if err != nil {
		return models.Reply{}, fmt.Errorf("error sending request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Reply{}, errors.New("no choices found")
	}

	choice := resp.Choices[0]
	reply := models.Reply{Response: choice.Message.Content}
	if choice.LogProbs != nil {
		reply.Confidence = confidenceFromLogProbs(choice.LogProbs.Content)
	}

	if reply.Response != "" {
		o.history = append(o.history, user, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleAssistant,
			Content: reply.Response,
		})
	}

	o.logger.Debug("Chat completion",
		slog.String("finishReason", string(choice.FinishReason)),
		slog.Int("tokens", resp.Usage.TotalTokens))

	return reply, nil
}

// Reset forgets the conversation history.
func (o *OpenAI) Reset(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.history = nil
	return nil
}

// confidenceFromLogProbs returns exp(mean log probability) over the answer tokens, or nil when the
// server returned none.
func confidenceFromLogProbs(tokens []goopenai.LogProb) *float64 {
	if len(tokens) == 0 {
		return nil
	}
	var sum float64
	for _, t := range tokens {
		sum += t.LogProb
	}
	return models.Float(math.Exp(sum / float64(len(tokens))))
}
