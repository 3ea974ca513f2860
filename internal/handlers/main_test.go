package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	chatwidget "github.com/MegaGrindStone/chat-widget"
	"github.com/MegaGrindStone/chat-widget/internal/chat"
	"github.com/MegaGrindStone/chat-widget/internal/handlers"
	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/MegaGrindStone/chat-widget/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	reply    models.Reply
	err      error
	resetErr error
}

type mockStore struct {
	mu       sync.Mutex
	messages map[string][]models.Message
	err      error
}

const testSession = "8f14e45f-ceea-4e7a-9c1b-3b5e2c4d6a70"

func newMain(t *testing.T, transport *mockTransport, store *mockStore) handlers.Main {
	t.Helper()
	return newMainWithOptions(t, transport, store, testOptions())
}

func newMainWithOptions(
	t *testing.T,
	transport *mockTransport,
	store *mockStore,
	opts handlers.Options,
) handlers.Main {
	t.Helper()

	m := buildMain(t, transport, store, opts)
	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
	})
	openSession(t, m, testSession)
	return m
}

func testOptions() handlers.Options {
	return handlers.Options{
		Welcome:  "Welcome to the **internship** assistant.",
		Examples: []string{"How do I write a good internship application?"},
	}
}

// openSession loads the page as the given session, which is what makes the session usable.
func openSession(t *testing.T, m handlers.Main, sessionID string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "chat_session", Value: sessionID})
	w := httptest.NewRecorder()
	m.HandleHome(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func buildMain(t *testing.T, transport *mockTransport, store *mockStore, opts handlers.Options) handlers.Main {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	renderer, err := render.NewRenderer(chatwidget.TemplateFS, "")
	require.NoError(t, err)

	m, err := handlers.NewMain(
		chatwidget.TemplateFS,
		renderer,
		func(string) chat.Transport { return transport },
		store,
		opts,
		logger,
	)
	require.NoError(t, err)
	return m
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "chat_session", Value: testSession})
	return req
}

func TestNewMain(t *testing.T) {
	m := buildMain(t, &mockTransport{}, newMockStore(), testOptions())

	if m.Shutdown(context.Background()) != nil {
		t.Error("Shutdown() should not return error")
	}
}

func TestHandleHome(t *testing.T) {
	store := newMockStore()
	store.messages[testSession] = []models.Message{
		{ID: "1-a", Text: "Hello <b>bot</b>", Sender: models.SenderUser},
		{ID: "2-b", Text: "Hi", Sender: models.SenderBot, Intent: "greeting", Confidence: models.Float(0.9)},
	}
	m := newMain(t, &mockTransport{}, store)

	t.Run("New visitor gets a session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		m.HandleHome(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "<strong>internship</strong>")
		assert.Contains(t, body, "How do I write a good internship application?")
		assert.Contains(t, body, `id="chatMessages"`)
		assert.NotContains(t, body, "Hello &lt;b&gt;bot&lt;/b&gt;")

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "chat_session", cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
	})

	t.Run("Returning visitor sees transcript", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "chat_session", Value: testSession})
		w := httptest.NewRecorder()

		m.HandleHome(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "Hello &lt;b&gt;bot&lt;/b&gt;")
		assert.Contains(t, body, ">Greeting<")
		assert.Contains(t, body, `<script src="/static/app.js"></script>`)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("Unknown path", func(t *testing.T) {
		w := httptest.NewRecorder()
		m.HandleHome(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleSend(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		message    string
		transport  *mockTransport
		storeErr   error
		wantStatus int
		wantTexts  []string
	}{
		{
			name:       "Invalid method",
			method:     http.MethodGet,
			transport:  &mockTransport{},
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Empty message is dropped",
			method:     http.MethodPost,
			message:    "   ",
			transport:  &mockTransport{},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "Reply",
			method:     http.MethodPost,
			message:    "Hello",
			transport:  &mockTransport{reply: models.Reply{Response: "Hi", Intent: "greeting"}},
			wantStatus: http.StatusNoContent,
			wantTexts:  []string{"Hello", "Hi"},
		},
		{
			name:       "Backend failure is shown, not returned",
			method:     http.MethodPost,
			message:    "Hello",
			transport:  &mockTransport{err: errors.New("connection refused")},
			wantStatus: http.StatusNoContent,
			wantTexts:  []string{"Hello", models.TransportErrorText},
		},
		{
			name:       "Store failure",
			method:     http.MethodPost,
			message:    "Hello",
			transport:  &mockTransport{reply: models.Reply{Response: "Hi"}},
			storeErr:   errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			m := newMain(t, tt.transport, store)
			store.mu.Lock()
			store.err = tt.storeErr
			store.mu.Unlock()

			req := postForm("/ui/send", url.Values{"message": {tt.message}})
			req.Method = tt.method
			w := httptest.NewRecorder()

			m.HandleSend(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantTexts, store.texts(testSession))
		})
	}
}

func TestHandleSendRequiresSession(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
	}{
		{name: "No cookie"},
		{name: "Malformed cookie", cookie: "not-a-session"},
		{name: "Session never issued", cookie: "0b7c1d52-5a3e-4f0e-9a51-2d8f4e6c1b93"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			transport := &mockTransport{reply: models.Reply{Response: "Hi"}}
			m := newMain(t, transport, store)

			for range 100 {
				req := httptest.NewRequest(http.MethodPost, "/ui/send",
					strings.NewReader(url.Values{"message": {"Hello"}}.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				if tt.cookie != "" {
					req.AddCookie(&http.Cookie{Name: "chat_session", Value: tt.cookie})
				}
				w := httptest.NewRecorder()

				m.HandleSend(w, req)

				require.Equal(t, http.StatusUnauthorized, w.Code)
				assert.Empty(t, w.Result().Cookies())
			}
			assert.Empty(t, store.sessionIDs())
		})
	}
}

func TestSessionEviction(t *testing.T) {
	store := newMockStore()
	opts := testOptions()
	opts.MaxSessions = 1
	m := newMainWithOptions(t, &mockTransport{reply: models.Reply{Response: "Hi"}}, store, opts)

	// A second visitor pushes the first session out.
	w := httptest.NewRecorder()
	m.HandleHome(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	w = httptest.NewRecorder()
	m.HandleSend(w, postForm("/ui/send", url.Values{"message": {"Hello"}}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/ui/send",
		strings.NewReader(url.Values{"message": {"Hello"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	m.HandleSend(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"Hello", "Hi"}, store.texts(cookies[0].Value))

	// Loading the page again brings the evicted session back.
	openSession(t, m, testSession)
	w = httptest.NewRecorder()
	m.HandleSend(w, postForm("/ui/send", url.Values{"message": {"Hello"}}))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionIdleTimeout(t *testing.T) {
	opts := testOptions()
	opts.SessionTTL = 50 * time.Millisecond
	m := newMainWithOptions(t, &mockTransport{reply: models.Reply{Response: "Hi"}}, newMockStore(), opts)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		m.HandleReset(w, postForm("/ui/reset", nil))
		return w.Code == http.StatusUnauthorized
	}, 2*time.Second, 100*time.Millisecond)
}

func TestHandleAsk(t *testing.T) {
	store := newMockStore()
	m := newMain(t, &mockTransport{reply: models.Reply{Response: "Use the career portal."}}, store)

	w := httptest.NewRecorder()
	m.HandleAsk(w, postForm("/ui/ask", url.Values{"question": {"Where do I look?"}}))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"Where do I look?", "Use the career portal."}, store.texts(testSession))
}

func TestHandleReset(t *testing.T) {
	t.Run("Success clears the transcript", func(t *testing.T) {
		store := newMockStore()
		m := newMain(t, &mockTransport{reply: models.Reply{Response: "Hi"}}, store)

		m.HandleSend(httptest.NewRecorder(), postForm("/ui/send", url.Values{"message": {"Hello"}}))
		require.Len(t, store.texts(testSession), 2)

		w := httptest.NewRecorder()
		m.HandleReset(w, postForm("/ui/reset", nil))

		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{models.ResetConfirmationText}, store.texts(testSession))
	})

	t.Run("Failure keeps the transcript", func(t *testing.T) {
		store := newMockStore()
		m := newMain(t, &mockTransport{
			reply:    models.Reply{Response: "Hi"},
			resetErr: errors.New("backend down"),
		}, store)

		m.HandleSend(httptest.NewRecorder(), postForm("/ui/send", url.Values{"message": {"Hello"}}))

		w := httptest.NewRecorder()
		m.HandleReset(w, postForm("/ui/reset", nil))

		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"Hello", "Hi", models.ResetErrorText}, store.texts(testSession))
	})
}

func TestHandleKey(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantAction  string
		wantPrevent bool
		wantTexts   []string
	}{
		{
			name:        "Enter sends the input",
			body:        `{"key":"Enter","inputFocused":true,"input":"Hello"}`,
			wantStatus:  http.StatusOK,
			wantAction:  "send",
			wantPrevent: true,
			wantTexts:   []string{"Hello", "Hi"},
		},
		{
			name:        "Ctrl+R resets",
			body:        `{"key":"r","ctrl":true}`,
			wantStatus:  http.StatusOK,
			wantAction:  "reset",
			wantPrevent: true,
			wantTexts:   []string{models.ResetConfirmationText},
		},
		{
			name:       "Escape focuses",
			body:       `{"key":"Escape"}`,
			wantStatus: http.StatusOK,
			wantAction: "focus",
		},
		{
			name:       "Invalid body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			m := newMain(t, &mockTransport{reply: models.Reply{Response: "Hi"}}, store)

			req := httptest.NewRequest(http.MethodPost, "/ui/key", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.AddCookie(&http.Cookie{Name: "chat_session", Value: testSession})
			w := httptest.NewRecorder()

			m.HandleKey(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var res struct {
				Action         string `json:"action"`
				PreventDefault bool   `json:"preventDefault"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
			assert.Equal(t, tt.wantAction, res.Action)
			assert.Equal(t, tt.wantPrevent, res.PreventDefault)
			assert.Equal(t, tt.wantTexts, store.texts(testSession))
		})
	}
}

func (m *mockTransport) Chat(context.Context, string) (models.Reply, error) {
	return m.reply, m.err
}

func (m *mockTransport) Reset(context.Context) error {
	return m.resetErr
}

func newMockStore() *mockStore {
	return &mockStore{messages: map[string][]models.Message{}}
}

func (m *mockStore) Messages(_ context.Context, sessionID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.messages[sessionID], nil
}

func (m *mockStore) AddMessage(_ context.Context, sessionID string, msg models.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg.ID, nil
}

func (m *mockStore) ClearMessages(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.messages, sessionID)
	return nil
}

func (m *mockStore) sessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.messages {
		ids = append(ids, id)
	}
	return ids
}

func (m *mockStore) texts(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var texts []string
	for _, msg := range m.messages[sessionID] {
		texts = append(texts, msg.Text)
	}
	return texts
}
