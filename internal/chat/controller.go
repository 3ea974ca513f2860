package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/google/uuid"
)

// Transport carries the two requests the widget makes to its backend.
type Transport interface {
	Chat(ctx context.Context, message string) (models.Reply, error)
	Reset(ctx context.Context) error
}

// View is the UI the controller drives. Append must keep the message list scrolled to the bottom,
// and TruncateToFirst removes every message except the first (welcome) one.
type View interface {
	Append(ctx context.Context, msg models.Message) error
	ShowTyping(ctx context.Context) error
	HideTyping(ctx context.Context) error
	TruncateToFirst(ctx context.Context) error
	SetInput(ctx context.Context, text string) error
	SetInputEnabled(ctx context.Context, enabled bool) error
	FocusInput(ctx context.Context) error
}

// Controller mediates user input, keeps at most one send request in flight and updates the view
// with the outcome.
type Controller struct {
	transport Transport
	view      View
	busy      atomic.Bool

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewController creates a controller that sends through transport and renders into view.
func NewController(transport Transport, view View, logger *slog.Logger) *Controller {
	return &Controller{
		transport: transport,
		view:      view,
		logger:    logger.With(slog.String("module", "chat")),
	}
}

// Busy reports whether a send request is outstanding.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// SendMessage sends text to the backend and shows the exchange. Empty text or a send attempted
// while busy is dropped without touching the view, returning ErrEmptyMessage or ErrBusy.
//
// Otherwise exactly one user message and one bot message are appended. A backend failure is shown
// as a bot message with the error intent and returned as *Error. Once the request has been made the
// bot message is appended even if hiding the typing indicator fails. The busy flag is always
// released and the input re-enabled and focused before SendMessage returns.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return ErrEmptyMessage
	}
	if !c.acquire() {
		return ErrBusy
	}
	defer c.settle(ctx)

	return c.send(ctx, msg)
}

// AskQuestion fills the input with question and sends it, as the example-question buttons do. The
// busy flag is held from filling the input to the reply, so no other send can take the input over.
func (c *Controller) AskQuestion(ctx context.Context, question string) error {
	msg := strings.TrimSpace(question)
	if msg == "" {
		return ErrEmptyMessage
	}
	if !c.acquire() {
		return ErrBusy
	}
	defer c.settle(ctx)

	if err := c.view.SetInput(ctx, question); err != nil {
		return fmt.Errorf("failed to fill input: %w", err)
	}
	return c.send(ctx, msg)
}

// ResetConversation asks the backend to forget the conversation. On success every message but the
// first is removed and a greeting confirmation is appended; on failure history is kept and an error
// message is appended. It is dropped with ErrBusy while a send is outstanding.
func (c *Controller) ResetConversation(ctx context.Context) error {
	if c.busy.Load() {
		return ErrBusy
	}

	if err := c.transport.Reset(ctx); err != nil {
		c.logger.Error("Reset request failed", slog.String(errLoggerKey, err.Error()))
		notice := newMessage(models.ResetErrorText, models.SenderBot, models.IntentError, nil)
		if err := c.view.Append(ctx, notice); err != nil {
			return fmt.Errorf("failed to append reset error: %w", err)
		}
		return &Error{Kind: KindTransport, Op: "reset", Err: err}
	}

	if err := c.view.TruncateToFirst(ctx); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	confirm := newMessage(models.ResetConfirmationText, models.SenderBot, models.IntentGreeting, nil)
	if err := c.view.Append(ctx, confirm); err != nil {
		return fmt.Errorf("failed to append reset confirmation: %w", err)
	}
	return nil
}

// HandleKey runs the action bound to ev. input is the current content of the input field. The
// returned flag tells the page whether to suppress the browser default.
func (c *Controller) HandleKey(ctx context.Context, ev KeyEvent, input string) (bool, error) {
	action, preventDefault := ResolveKey(ev)
	switch action {
	case ActionSend:
		return preventDefault, c.SendMessage(ctx, input)
	case ActionReset:
		return preventDefault, c.ResetConversation(ctx)
	case ActionFocus:
		if err := c.view.FocusInput(ctx); err != nil {
			return preventDefault, fmt.Errorf("failed to focus input: %w", err)
		}
	case ActionNone:
	}
	return preventDefault, nil
}

func (c *Controller) acquire() bool {
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Debug("Dropping request, another one is in flight")
		return false
	}
	return true
}

// send runs one exchange. The caller holds the busy flag.
func (c *Controller) send(ctx context.Context, msg string) error {
	if err := c.view.SetInput(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear input: %w", err)
	}
	if err := c.view.Append(ctx, newMessage(msg, models.SenderUser, "", nil)); err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}
	if err := c.view.ShowTyping(ctx); err != nil {
		return fmt.Errorf("failed to show typing indicator: %w", err)
	}
	if err := c.view.SetInputEnabled(ctx, false); err != nil {
		return fmt.Errorf("failed to disable input: %w", err)
	}

	reply, err := c.transport.Chat(ctx, msg)
	bot, chatErr := replyMessage(reply, err)

	hideErr := c.view.HideTyping(ctx)
	if hideErr != nil {
		hideErr = fmt.Errorf("failed to hide typing indicator: %w", hideErr)
	}
	if err := c.view.Append(ctx, bot); err != nil {
		return errors.Join(hideErr, fmt.Errorf("failed to append bot message: %w", err))
	}
	if hideErr != nil {
		return hideErr
	}

	if chatErr != nil {
		c.logger.Error("Chat request failed",
			slog.String("kind", string(chatErr.Kind)),
			slog.String(errLoggerKey, chatErr.Error()))
		return chatErr
	}
	return nil
}

func (c *Controller) settle(ctx context.Context) {
	c.busy.Store(false)

	if err := c.view.SetInputEnabled(ctx, true); err != nil {
		c.logger.Error("Failed to enable input", slog.String(errLoggerKey, err.Error()))
	}
	if err := c.view.FocusInput(ctx); err != nil {
		c.logger.Error("Failed to focus input", slog.String(errLoggerKey, err.Error()))
	}
}

func replyMessage(reply models.Reply, err error) (models.Message, *Error) {
	if err != nil {
		return newMessage(models.TransportErrorText, models.SenderBot, models.IntentError, nil),
			&Error{Kind: KindTransport, Op: "chat", Err: err}
	}
	if reply.Response == "" {
		return newMessage(models.ApplicationErrorText, models.SenderBot, models.IntentError, nil),
			&Error{Kind: KindApplication, Op: "chat", Err: ErrNoResponse}
	}
	return newMessage(reply.Response, models.SenderBot, reply.Intent, reply.Confidence), nil
}

func newMessage(text string, sender models.Sender, intent string, confidence *float64) models.Message {
	return models.Message{
		ID:         uuid.New().String(),
		Text:       text,
		Sender:     sender,
		Intent:     intent,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}
