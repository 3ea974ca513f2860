package chat_test

import (
	"testing"

	"github.com/MegaGrindStone/chat-widget/internal/chat"
	"github.com/stretchr/testify/assert"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name        string
		event       chat.KeyEvent
		wantAction  chat.Action
		wantPrevent bool
	}{
		{"Enter in input", chat.KeyEvent{Key: "Enter", InputFocused: true}, chat.ActionSend, true},
		{"Shift+Enter in input", chat.KeyEvent{Key: "Enter", Shift: true, InputFocused: true}, chat.ActionNone, false},
		{"Enter outside input", chat.KeyEvent{Key: "Enter"}, chat.ActionNone, false},
		{"Ctrl+R", chat.KeyEvent{Key: "r", Ctrl: true}, chat.ActionReset, true},
		{"Cmd+R", chat.KeyEvent{Key: "r", Meta: true}, chat.ActionReset, true},
		{"Ctrl+R in input", chat.KeyEvent{Key: "r", Ctrl: true, InputFocused: true}, chat.ActionReset, true},
		{"Plain r", chat.KeyEvent{Key: "r"}, chat.ActionNone, false},
		{"Escape", chat.KeyEvent{Key: "Escape"}, chat.ActionFocus, false},
		{"Escape in input", chat.KeyEvent{Key: "Escape", InputFocused: true}, chat.ActionFocus, false},
		{"Other key", chat.KeyEvent{Key: "a", InputFocused: true}, chat.ActionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, prevent := chat.ResolveKey(tt.event)
			assert.Equal(t, tt.wantAction, action, "action %s", action)
			assert.Equal(t, tt.wantPrevent, prevent)
		})
	}
}
