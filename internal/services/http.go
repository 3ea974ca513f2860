package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-widget/internal/models"
)

// HTTPBackend talks to a chat backend exposing POST /chat and POST /reset. It applies no timeout and
// no retry; a request settles however the underlying transport settles it.
type HTTPBackend struct {
	baseURL string

	client *http.Client

	logger *slog.Logger
}

type backendChatRequest struct {
	Message string `json:"message"`
}

// NewHTTPBackend creates a backend client rooted at baseURL, e.g. "http://localhost:5000".
func NewHTTPBackend(baseURL string, logger *slog.Logger) HTTPBackend {
	return HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "backend")),
	}
}

// Chat posts {message} to /chat. Any JSON body is a reply, whatever the status code, so a backend
// that reports its own failures in the body is shown as it answered. A body that is not JSON, or a
// failed request, is returned as an error.
func (h HTTPBackend) Chat(ctx context.Context, message string) (models.Reply, error) {
	var res any
	if err := h.post(ctx, "/chat", backendChatRequest{Message: message}, &res); err != nil {
		return models.Reply{}, err
	}
	return parseReply(res), nil
}

// parseReply keeps the reply fields that carry the expected type and leaves the others empty. A JSON
// body that is not an object yields an empty reply.
func parseReply(body any) models.Reply {
	fields, ok := body.(map[string]any)
	if !ok {
		return models.Reply{}
	}

	var reply models.Reply
	reply.Response, _ = fields["response"].(string)
	reply.Intent, _ = fields["intent"].(string)
	if confidence, ok := fields["confidence"].(float64); ok {
		reply.Confidence = models.Float(confidence)
	}
	return reply
}

// Reset posts an empty JSON object to /reset. The reply body must be JSON but is otherwise ignored.
func (h HTTPBackend) Reset(ctx context.Context) error {
	var res json.RawMessage
	return h.post(ctx, "/reset", struct{}{}, &res)
}

func (h HTTPBackend) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		h.logger.Warn("Backend answered with error status",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
