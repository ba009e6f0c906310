package lookbook

import (
	"context"
	"errors"
	"fmt"
)

// Per-item failures. They are recorded on the item and never abort siblings.
var (
	ErrInvalidURL           = errors.New("invalid url")
	ErrImageUnreadable      = errors.New("image unreadable")
	ErrVisionFailure        = errors.New("vision failure")
	ErrContentFailure       = errors.New("content failure")
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrTimeout              = errors.New("timeout")
)

// Batch-level failures.
var (
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrCacheCorruption means the hash cache bookkeeping broke an invariant.
	// It is fatal for the batch and needs operator attention.
	ErrCacheCorruption = errors.New("cache corruption")
	ErrRowStore        = errors.New("row store write failed")
)

// ErrorKind is the report-facing name of a failure class.
type ErrorKind string

const (
	KindInvalidURL           ErrorKind = "InvalidURL"
	KindImageUnreadable      ErrorKind = "ImageUnreadable"
	KindVisionFailure        ErrorKind = "VisionFailure"
	KindContentFailure       ErrorKind = "ContentFailure"
	KindMalformedModelOutput ErrorKind = "MalformedModelOutput"
	KindTimeout              ErrorKind = "Timeout"
	KindUnknown              ErrorKind = "Unknown"
)

// kindOrder lists sentinels from most to least specific. A vision timeout
// wraps both ErrVisionFailure and ErrTimeout and reports as Timeout.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrTimeout, KindTimeout},
	{ErrMalformedModelOutput, KindMalformedModelOutput},
	{ErrVisionFailure, KindVisionFailure},
	{ErrContentFailure, KindContentFailure},
	{ErrImageUnreadable, KindImageUnreadable},
	{ErrInvalidURL, KindInvalidURL},
}

// KindOf maps an item error to its report kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// ErrorCategory classifies collaborator failures for the retry policy.
type ErrorCategory int

const (
	CategoryTransient ErrorCategory = iota
	CategoryAuth
	CategoryMalformedInput
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryAuth:
		return "auth"
	case CategoryMalformedInput:
		return "malformed-input"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ServiceError is returned by Vision and Content adapters so the orchestrator
// can tell retryable failures from permanent ones.
type ServiceError struct {
	Category   ErrorCategory
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying. Unclassified errors are
// treated as transient; auth and malformed-input failures never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Category == CategoryTransient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Per-attempt deadlines, network errors and anything unclassified.
	return true
}
