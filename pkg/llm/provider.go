package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider produces a single text completion for a prompt.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// ErrEmptyResponse is returned when the backend answered without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	Provider   string
	Model      string
	StatusCode int
	Body       string
	Wait       time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	if e.Model != "" {
		msg += " (model " + e.Model + ")"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// RetryAfter returns the server-provided wait hint, if any.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

// Temporary reports whether a later retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsModelNotFound reports whether err means the requested model does not exist.
func IsModelNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsTemporary reports whether err is worth retrying.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, ErrEmptyResponse) {
		return false
	}
	return true
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
