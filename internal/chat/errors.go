package chat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed exchange with the backend.
type ErrorKind string

const (
	// KindApplication means the request succeeded but the payload had no usable response.
	KindApplication ErrorKind = "application"
	// KindTransport means the request failed outright, on the network or while decoding.
	KindTransport ErrorKind = "transport"
)

var (
	// ErrBusy is returned when a send or reset is attempted while a send is outstanding. The attempt
	// is dropped, not queued.
	ErrBusy = errors.New("chat: a message is already being sent")
	// ErrEmptyMessage is returned when the text to send is empty after trimming.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrNoResponse is wrapped by application errors.
	ErrNoResponse = errors.New("chat: reply has no response")
)

// Error is a backend failure that the controller has already recovered from by showing a bot
// message. Callers receive it for logging; the session stays usable.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("chat: %s %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Recovered reports whether err only describes a condition the controller handled on its own: a
// dropped attempt or a backend failure already shown to the user.
func Recovered(err error) bool {
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrEmptyMessage) {
		return true
	}
	var chatErr *Error
	return errors.As(err, &chatErr)
}
