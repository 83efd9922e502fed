// Package generator turns prompts into post text through an llm.Provider.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"cadence/internal/models"
	"cadence/pkg/clients"
	"cadence/pkg/llm"
	"cadence/pkg/logging"
)

type Kind string

const (
	KindReply      Kind = "reply"
	KindQuote      Kind = "quote"
	KindThread     Kind = "thread"
	KindStandalone Kind = "standalone"
)

const (
	MaxTweetLength = 280
	// MaxQuoteLength leaves room for the quoted status URL.
	MaxQuoteLength = MaxTweetLength - 50

	DefaultThreadSegments = 5
)

type Request struct {
	Kind       Kind
	SourceText string
	Context    string
	Segments   int
	// MinSegments is the fewest thread segments accepted; it defaults to 2 and is capped at Segments.
	MinSegments int
}

type Result struct {
	Text     string
	Segments []string
}

// Generator produces post content.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// LLMGenerator is the Generator backed by a text-generation provider.
type LLMGenerator struct {
	provider llm.Provider
	retry    clients.RetryPolicy
	logger   logging.Logger
}

// New wraps provider. Temporary provider errors are retried per retry.
func New(provider llm.Provider, retry clients.RetryPolicy, logger logging.Logger) *LLMGenerator {
	retry.ShouldRetry = llm.IsTemporary
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WithError(err).WithFields(logging.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Generation failed, retrying")
	}
	return &LLMGenerator{provider: provider, retry: retry, logger: logger}
}

// DefaultRetryPolicy mirrors the provider's 429 guidance: 5s, 10s, 20s.
func DefaultRetryPolicy() clients.RetryPolicy {
	return clients.RetryPolicy{
		MaxAttempts:  3,
		BaseDelay:    5 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	prompt, maxTokens, err := buildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	text, err := clients.Retry(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.provider.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: maxTokens})
	})
	if err != nil {
		return Result{}, classify(req.Kind, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, &models.ContentError{Kind: string(req.Kind), Reason: "empty response"}
	}

	switch req.Kind {
	case KindThread:
		n := req.Segments
		if n <= 0 {
			n = DefaultThreadSegments
		}
		segments := ParseThread(text, n)
		if len(segments) == 0 {
			return Result{}, &models.ContentError{Kind: string(req.Kind), Reason: "no numbered segments in response"}
		}
		if want := minSegments(req.MinSegments, n); len(segments) < want {
			return Result{}, &models.ContentError{
				Kind:   string(req.Kind),
				Reason: fmt.Sprintf("thread too short: %d of at least %d segments", len(segments), want),
			}
		}
		g.logger.WithField("segments", len(segments)).Info("Generated thread")
		return Result{Segments: segments}, nil
	case KindQuote:
		text = Truncate(text, MaxQuoteLength)
	default:
		text = Truncate(text, MaxTweetLength)
	}
	g.logger.WithFields(logging.Fields{
		"kind":    string(req.Kind),
		"preview": Truncate(text, 50),
	}).Info("Generated content")
	return Result{Text: text}, nil
}

func classify(kind Kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, llm.ErrEmptyResponse) {
		return &models.ContentError{Kind: string(kind), Reason: "empty response"}
	}
	if llm.IsTemporary(err) {
		t := &models.TransientProviderError{Provider: "llm", Err: err}
		var ra clients.RetryAfterer
		if errors.As(err, &ra) {
			t.RetryAfter = ra.RetryAfter()
		}
		return t
	}
	return fmt.Errorf("generate %s: %w", kind, err)
}

func minSegments(requested, n int) int {
	if requested <= 0 {
		requested = 2
	}
	if requested > n {
		requested = n
	}
	return requested
}

// Truncate cuts s to at most limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	// Compose first so a base letter and its accent count, and are cut, as one rune.
	s = norm.NFC.String(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}
