package extract

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies pipeline failures for the retry policy.
type Kind string

// Failure kinds.
const (
	KindFetch     Kind = "fetch"
	KindTransform Kind = "transform"
	KindIO        Kind = "io"
	KindConfig    Kind = "config"
	KindInternal  Kind = "internal"
)

// Sentinel causes wrapped by typed errors.
var (
	ErrEmptyRender = errors.New("render produced no content")
	ErrPathEscape  = errors.New("label resolves outside the output root")
	ErrInvalidItem = errors.New("invalid work item")
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FetchError wraps navigation and browser session failures.
func FetchError(err error) error {
	return &Error{Kind: KindFetch, Stage: "render", Err: err}
}

// TransformError wraps markup conversion failures.
func TransformError(err error) error {
	return &Error{Kind: KindTransform, Stage: "transform", Err: err}
}

// IOError wraps persistence failures.
func IOError(err error) error {
	return &Error{Kind: KindIO, Stage: "persist", Err: err}
}

// ConfigError wraps structurally invalid input that retrying cannot fix.
func ConfigError(err error) error {
	return &Error{Kind: KindConfig, Stage: "validate", Err: err}
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StageOf returns the pipeline stage recorded on err, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// Retryable reports whether another attempt could plausibly succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) != KindConfig
}
