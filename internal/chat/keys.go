package chat

// KeyEvent is a key press forwarded from the page.
type KeyEvent struct {
	Key          string `json:"key"`
	Shift        bool   `json:"shift"`
	Ctrl         bool   `json:"ctrl"`
	Meta         bool   `json:"meta"`
	InputFocused bool   `json:"inputFocused"`
}

// Action is what a key press asks the controller to do.
type Action int

const (
	ActionNone Action = iota
	ActionSend
	ActionReset
	ActionFocus
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionReset:
		return "reset"
	case ActionFocus:
		return "focus"
	default:
		return "none"
	}
}

// ResolveKey maps a key event to an action and reports whether the browser default must be
// suppressed. Enter without Shift sends only while the input is focused; Ctrl/Cmd+R resets instead
// of reloading; Escape focuses the input from anywhere.
func ResolveKey(ev KeyEvent) (Action, bool) {
	switch {
	case ev.Key == "Enter" && !ev.Shift && ev.InputFocused:
		return ActionSend, true
	case (ev.Ctrl || ev.Meta) && ev.Key == "r":
		return ActionReset, true
	case ev.Key == "Escape":
		return ActionFocus, false
	default:
		return ActionNone, false
	}
}
