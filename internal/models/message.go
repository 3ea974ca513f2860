package models

import "time"

// Message represents a single entry in the conversation shown by the widget. A message is created
// when the user sends text or when a reply (or a local error notice) arrives, and it is never changed
// after it has been rendered.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`

	// Intent is the backend-classified label of the message. Empty means no intent.
	Intent string `json:"intent,omitempty"`
	// Confidence is the backend-reported certainty in [0,1]. Nil means the backend did not report one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Reply is the payload returned by a backend for a single user message.
type Reply struct {
	// Response is the text to show. An empty Response is not a usable reply.
	Response   string
	Intent     string
	Confidence *float64
}

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser marks messages typed by the user.
	SenderUser Sender = "user"
	// SenderBot marks replies from the backend and locally generated notices.
	SenderBot Sender = "bot"
)

// Sentinel intents. Messages tagged with IntentError or IntentFallback never get an intent badge.
const (
	IntentError    = "error"
	IntentFallback = "fallback"
	IntentGreeting = "greeting"
)

// User-facing texts for locally generated bot messages.
const (
	ApplicationErrorText = "Sorry, I encountered an error. Please try again."
	TransportErrorText   = "Sorry, I encountered a connection error. " +
		"Please check your internet connection and try again."
	ResetConfirmationText = "Conversation has been reset. How can I help you with your internship questions?"
	ResetErrorText        = "Sorry, I couldn't reset the conversation. You can continue asking questions."
)

// Float returns a pointer to v. It is handy for building replies with a confidence.
func Float(v float64) *float64 {
	return &v
}
