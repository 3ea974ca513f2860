package handlers

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-widget/internal/chat"
	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/MegaGrindStone/chat-widget/internal/render"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tmaxmax/go-sse"
)

// Store defines the interface for keeping the transcript of each widget session. Messages come back
// in the order they were added; ClearMessages drops the whole transcript of a session.
type Store interface {
	Messages(ctx context.Context, sessionID string) ([]models.Message, error)
	AddMessage(ctx context.Context, sessionID string, message models.Message) (string, error)
	ClearMessages(ctx context.Context, sessionID string) error
}

// TransportFactory returns the backend transport for a new session. Stateless backends may return
// the same value for every session.
type TransportFactory func(sessionID string) chat.Transport

// Options holds the page content that does not come from the backend.
type Options struct {
	// Welcome is the Markdown text of the first message, which survives resets.
	Welcome string
	// Examples are offered as one-click questions below the message list.
	Examples []string
	// MaxSessions caps the sessions held in memory; the least recently used one is dropped first.
	MaxSessions int
	// SessionTTL drops a session that has not been used for that long.
	SessionTTL time.Duration
}

// Session limits used when Options leaves them unset.
const (
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = time.Hour
)

// Main binds chat controllers to browser pages. Every browser session gets its own controller whose
// view is pushed to the page through server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	renderer  render.Renderer

	welcome  template.HTML
	examples []string

	transports TransportFactory
	store      Store
	sessions   *sessions

	logger *slog.Logger
}

// sessions holds the controllers of the sessions issued by HandleHome. An evicted session loses its
// controller and transport; its stored transcript stays.
type sessions struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *chat.Controller]
}

const errLoggerKey = "err"

// NewMain creates a new Main instance. Page templates are parsed from fsys, which must hold the
// templates/pages and templates/partials directories. The SSE server subscribes each client to the
// topic of the session named by its session cookie.
func NewMain(
	fsys fs.FS,
	renderer render.Renderer,
	transports TransportFactory,
	store Store,
	opts Options,
	logger *slog.Logger,
) (Main, error) {
	// We parse pages together with partials so pages can reuse the message templates
	tmpl, err := template.ParseFS(
		fsys,
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	welcome, err := renderer.Welcome(opts.Welcome)
	if err != nil {
		return Main{}, fmt.Errorf("failed to render welcome message: %w", err)
	}

	logger = logger.With(slog.String("module", "handlers"))

	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	ss := &sessions{
		cache: expirable.NewLRU[string, *chat.Controller](maxSessions, func(sessionID string, _ *chat.Controller) {
			logger.Debug("Session evicted", slog.String("sessionID", sessionID))
		}, ttl),
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				// Clients only ever hear the events of the session their cookie names
				c, err := s.Req.Cookie(sessionCookie)
				if err != nil || c.Value == "" {
					return sse.Subscription{}, false
				}
				sessionID := c.Value
				if _, ok := ss.cache.Get(sessionID); !ok {
					return sse.Subscription{}, false
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, sessionTopic(sessionID)},
				}, true
			},
		},
		templates:  tmpl,
		renderer:   renderer,
		welcome:    welcome,
		examples:   opts.Examples,
		transports: transports,
		store:      store,
		sessions:   ss,
		logger:     logger,
	}, nil
}

func sessionTopic(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// openSession returns the controller of sessionID, creating it when the session is new or was
// evicted.
func (m Main) openSession(sessionID string) *chat.Controller {
	m.sessions.mu.Lock()
	defer m.sessions.mu.Unlock()

	c, ok := m.sessions.cache.Get(sessionID)
	if !ok {
		view := &sseView{
			sessionID: sessionID,
			srv:       m.sseSrv,
			store:     m.store,
			renderer:  m.renderer,
		}
		c = chat.NewController(m.transports(sessionID), view, m.logger.With(slog.String("session", sessionID)))
	}
	// Adding again restarts the idle timer.
	m.sessions.cache.Add(sessionID, c)
	return c
}

// lookupSession returns the controller of a session opened earlier, or false when there is none.
func (m Main) lookupSession(sessionID string) (*chat.Controller, bool) {
	m.sessions.mu.Lock()
	defer m.sessions.mu.Unlock()

	c, ok := m.sessions.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	m.sessions.cache.Add(sessionID, c)
	return c, true
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
