package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/chat-widget/internal/chat"
)

type keyRequest struct {
	chat.KeyEvent
	Input string `json:"input"`
}

type keyResponse struct {
	Action         string `json:"action"`
	PreventDefault bool   `json:"preventDefault"`
}

// HandleSend sends the "message" form field on behalf of the caller's session. The reply is pushed
// to the page over SSE; the request itself answers 204 once the exchange has settled. Empty
// messages and messages sent while a reply is pending are dropped and also answer 204, since the
// page gives no feedback for them.
func (m Main) HandleSend(w http.ResponseWriter, r *http.Request) {
	if !m.allowPost(w, r) {
		return
	}

	c, ok := m.session(w, r)
	if !ok {
		return
	}
	m.respond(w, c.SendMessage(detached(r), r.FormValue("message")))
}

// HandleAsk sends one of the example questions, given in the "question" form field.
func (m Main) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if !m.allowPost(w, r) {
		return
	}

	c, ok := m.session(w, r)
	if !ok {
		return
	}
	m.respond(w, c.AskQuestion(detached(r), r.FormValue("question")))
}

// HandleReset resets the caller's conversation.
func (m Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !m.allowPost(w, r) {
		return
	}

	c, ok := m.session(w, r)
	if !ok {
		return
	}
	m.respond(w, c.ResetConversation(detached(r)))
}

// HandleKey runs the action bound to a key press forwarded by the page, and tells the page whether
// the browser default should have been suppressed.
func (m Main) HandleKey(w http.ResponseWriter, r *http.Request) {
	if !m.allowPost(w, r) {
		return
	}

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.logger.Error("Invalid key event", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid key event", http.StatusBadRequest)
		return
	}

	c, ok := m.session(w, r)
	if !ok {
		return
	}
	action, _ := chat.ResolveKey(req.KeyEvent)
	prevent, err := c.HandleKey(detached(r), req.KeyEvent, req.Input)
	if err != nil && !chat.Recovered(err) {
		m.logger.Error("Failed to handle key",
			slog.String("key", req.Key),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(keyResponse{
		Action:         action.String(),
		PreventDefault: prevent,
	}); err != nil {
		m.logger.Error("Failed to encode key response", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleSSE streams the view events of the caller's session.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (m Main) respond(w http.ResponseWriter, err error) {
	if err != nil && !chat.Recovered(err) {
		m.logger.Error("Failed to update chat view", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err != nil {
		m.logger.Debug("Request handled without reply", slog.String(errLoggerKey, err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// detached keeps the request values but not its cancellation: a send is never cancelled once issued,
// even when the page goes away.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
