package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a scrape failure.
type ErrorKind string

// Error kinds.
const (
	KindNavigation     ErrorKind = "navigation"
	KindExtraction     ErrorKind = "extraction"
	KindTimeout        ErrorKind = "timeout"
	KindContent        ErrorKind = "content"
	KindReconciliation ErrorKind = "reconciliation"
)

// ScrapeError is a classified failure. Abort reports whether the whole run
// must stop; otherwise only the offending item is skipped.
type ScrapeError struct {
	Kind  ErrorKind
	Op    string
	Item  string
	Err   error
	Abort bool
}

func (e *ScrapeError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s [%s]: %v", e.Kind, e.Op, e.Item, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Skip returns a recoverable error: the item is dropped and traversal continues.
func Skip(kind ErrorKind, op, item string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, Op: op, Item: item, Err: err}
}

// Abort returns an error that stops the run.
func Abort(kind ErrorKind, op, item string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, Op: op, Item: item, Err: err, Abort: true}
}

// IsAbort reports whether err must stop the run. Context cancellation always does.
func IsAbort(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Abort
	}
	return false
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
