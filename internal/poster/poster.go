// Package poster publishes content through the X API v2.
package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cadence/internal/generator"
	"cadence/pkg/logging"
)

type Kind string

const (
	KindTweet         Kind = "tweet"
	KindReply         Kind = "reply"
	KindQuote         Kind = "quote"
	KindThreadSegment Kind = "thread_segment"
)

type Request struct {
	Kind Kind
	Text string
	// TargetID is the replied-to, quoted or previous-segment id.
	TargetID string
}

// Poster publishes posts and returns their ids.
type Poster interface {
	Post(ctx context.Context, req Request) (string, error)
	Delete(ctx context.Context, id string) error
}

// QuoteURL is appended to quote posts so the platform renders the quoted status.
func QuoteURL(id string) string {
	return "https://twitter.com/user/status/" + id
}

// ThreadOptions controls PostThread.
type ThreadOptions struct {
	// Delay is waited between segments.
	Delay  time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logging.Logger
}

// PostThread posts segments in order, each replying to the previous one, and
// stops at the first failure. It returns the ids posted so far with the error.
func PostThread(ctx context.Context, p Poster, segments []string, opts ThreadOptions) ([]string, error) {
	if len(segments) == 0 {
		return nil, errors.New("thread has no segments")
	}
	ids := make([]string, 0, len(segments))
	for i, text := range segments {
		req := Request{Kind: KindTweet, Text: text}
		if len(ids) > 0 {
			req = Request{Kind: KindThreadSegment, Text: text, TargetID: ids[len(ids)-1]}
		}
		id, err := p.Post(ctx, req)
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.WithError(err).WithFields(logging.Fields{
					"segment": i + 1,
					"of":      len(segments),
				}).Error("Failed to post thread segment")
			}
			return ids, fmt.Errorf("segment %d/%d: %w", i+1, len(segments), err)
		}
		ids = append(ids, id)
		if i < len(segments)-1 && opts.Delay > 0 && opts.Sleep != nil {
			if err := opts.Sleep(ctx, opts.Delay); err != nil {
				return ids, err
			}
		}
	}
	return ids, nil
}

// limitFor is the text budget for a request kind before any suffix is added.
func limitFor(kind Kind) int {
	if kind == KindQuote {
		return generator.MaxQuoteLength
	}
	return generator.MaxTweetLength
}
