package chat

import (
	"errors"
	"fmt"
)

// Kind classifies chat backend failures.
type Kind string

const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindAPI     Kind = "api"
	KindParse   Kind = "parse"
)

// Error is returned for every failed backend call.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("chat: %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Severe reports a contract break with the backend.
func (e *Error) Severe() bool { return e.Kind == KindParse }

// KindOf returns the kind of a chat error, or "" for other errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether re-sending the same message may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	}
	return false
}

var userMessages = map[Kind]string{
	KindNetwork: "We couldn't reach our assistant. Please check your connection and try again.",
	KindTimeout: "Our assistant is taking longer than usual. Please try sending your message again.",
	KindAPI:     "Our assistant ran into a problem answering that. Please try again in a moment.",
	KindParse:   "Something went wrong on our side. Our team has been notified.",
}

const genericUserMessage = "Something went wrong. Please try again."

// UserMessage maps err to text that is safe to show a prospect. API errors
// carry the backend's own message when it sent one.
func UserMessage(err error) string {
	var ce *Error
	if !errors.As(err, &ce) {
		return genericUserMessage
	}
	if ce.Kind == KindAPI && ce.Message != "" {
		return ce.Message
	}
	if msg, ok := userMessages[ce.Kind]; ok {
		return msg
	}
	return genericUserMessage
}
