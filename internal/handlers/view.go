package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	"github.com/MegaGrindStone/chat-widget/internal/render"
	"github.com/tmaxmax/go-sse"
)

// SSE event types understood by the page script.
var (
	appendSSEType   = sse.Type("append")
	typingSSEType   = sse.Type("typing")
	untypingSSEType = sse.Type("untyping")
	truncateSSEType = sse.Type("truncate")
	inputSSEType    = sse.Type("input")
	valueSSEType    = sse.Type("value")
	clearSSEType    = sse.Type("clear")
	focusSSEType    = sse.Type("focus")
)

// sseView is the chat.View of one browser session. Appended messages are stored before they are
// published, so a reloaded page shows the same transcript.
type sseView struct {
	sessionID string

	srv      *sse.Server
	store    Store
	renderer render.Renderer

	mu sync.Mutex
}

func (v *sseView) Append(ctx context.Context, msg models.Message) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := v.store.AddMessage(ctx, v.sessionID, msg)
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	msg.ID = id

	html, err := v.renderer.Render(msg)
	if err != nil {
		return err
	}
	return v.publish(appendSSEType, string(html))
}

func (v *sseView) ShowTyping(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	html, err := v.renderer.TypingIndicator()
	if err != nil {
		return err
	}
	return v.publish(typingSSEType, string(html))
}

func (v *sseView) HideTyping(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.publish(untypingSSEType, render.TypingIndicatorID)
}

func (v *sseView) TruncateToFirst(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	// The welcome message is part of the page, not of the stored transcript.
	if err := v.store.ClearMessages(ctx, v.sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return v.publish(truncateSSEType, "first")
}

func (v *sseView) SetInput(_ context.Context, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if text == "" {
		return v.publish(clearSSEType, "input")
	}
	return v.publish(valueSSEType, text)
}

func (v *sseView) SetInputEnabled(_ context.Context, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return v.publish(inputSSEType, state)
}

func (v *sseView) FocusInput(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.publish(focusSSEType, "input")
}

func (v *sseView) publish(typ sse.EventType, data string) error {
	msg := sse.Message{Type: typ}
	msg.AppendData(data)
	if err := v.srv.Publish(&msg, sessionTopic(v.sessionID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
