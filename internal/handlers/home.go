package handlers

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/chat-widget/internal/chat"
	"github.com/google/uuid"
)

const sessionCookie = "chat_session"

type homePageData struct {
	AssistantName string
	Welcome       template.HTML
	Messages      []template.HTML
	Examples      []string
}

// HandleHome renders the widget page: the welcome message followed by the stored transcript of the
// caller's session. A session cookie is issued when the request has none.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := m.sessionID(w, r)
	m.openSession(sessionID)

	messages, err := m.store.Messages(r.Context(), sessionID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rendered := make([]template.HTML, len(messages))
	for i, msg := range messages {
		rendered[i], err = m.renderer.Render(msg)
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	data := homePageData{
		AssistantName: m.renderer.AssistantName(),
		Welcome:       m.welcome,
		Messages:      rendered,
		Examples:      m.examples,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// sessionID returns the session of the request, issuing a new one when the cookie is missing or
// does not hold a valid id.
func (m Main) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// session returns the controller of the session named by the request cookie. Requests without a
// cookie, or naming a session that HandleHome never issued or that has been evicted, get 401 so the
// page can reload and start over.
func (m Main) session(w http.ResponseWriter, r *http.Request) (*chat.Controller, bool) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if ctrl, ok := m.lookupSession(c.Value); ok {
			return ctrl, true
		}
	}

	m.logger.Warn("Request without a live session", slog.String("path", r.URL.Path))
	http.Error(w, "Session expired", http.StatusUnauthorized)
	return nil, false
}
