package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies why an invocation failed.
type Kind string

const (
	KindUnknownTool      Kind = "unknown_tool"
	KindInvalidArguments Kind = "invalid_arguments"
	KindUpstream         Kind = "upstream_error"
)

// Sentinels for errors.Is.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrUpstream         = errors.New("upstream error")
)

// Error is the failure outcome of one invocation. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Tool    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnknownTool:
		return fmt.Sprintf("unknown tool: %s", e.Tool)
	case KindInvalidArguments:
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
	default:
		return fmt.Sprintf("%s failed: %s", e.Tool, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnknownTool:
		return e.Kind == KindUnknownTool
	case ErrInvalidArguments:
		return e.Kind == KindInvalidArguments
	case ErrUpstream:
		return e.Kind == KindUpstream
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not a dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
