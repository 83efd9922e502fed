package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransientProviderError wraps a collaborator failure that may succeed later
// (rate limit, timeout, 5xx).
type TransientProviderError struct {
	Provider   string
	Err        error
	RetryAfter time.Duration
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// ContentError means generated content was empty or unusable.
type ContentError struct {
	Kind   string
	Reason string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("unusable %s content: %s", e.Kind, e.Reason)
}

// TargetGoneError means the item being replied to or quoted no longer exists
// or is not accessible.
type TargetGoneError struct {
	TargetID   string
	StatusCode int
}

func (e *TargetGoneError) Error() string {
	return fmt.Sprintf("target %s unavailable (status %d)", e.TargetID, e.StatusCode)
}

// PersistenceError wraps a failed state save.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist state to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FatalConfigError aborts startup.
type FatalConfigError struct {
	Missing []string
	Reason  string
}

func (e *FatalConfigError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required configuration: " + strings.Join(e.Missing, ", ")
	}
	return "invalid configuration: " + e.Reason
}

func IsTransient(err error) bool {
	var t *TransientProviderError
	return errors.As(err, &t)
}

func IsContentError(err error) bool {
	var c *ContentError
	return errors.As(err, &c)
}

func IsTargetGone(err error) bool {
	var g *TargetGoneError
	return errors.As(err, &g)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

func IsFatalConfig(err error) bool {
	var f *FatalConfigError
	return errors.As(err, &f)
}
