package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"cadence/internal/generator"
	"cadence/internal/models"
	"cadence/pkg/clients"
	"cadence/pkg/logging"
)

const DefaultBaseURL = "https://api.twitter.com"

// Credentials are the OAuth 1.0a user-context keys.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

type XConfig struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	Retry       clients.RetryPolicy
	Breaker     clients.CircuitBreakerConfig
	// HTTPClient replaces the transport used under the OAuth signer, mainly for tests.
	HTTPClient *http.Client
}

// XPoster talks to POST /2/tweets and DELETE /2/tweets/:id.
type XPoster struct {
	baseURL string
	client  *http.Client
	retry   clients.RetryPolicy
	breaker *clients.CircuitBreaker
	logger  logging.Logger
}

func NewXPoster(cfg XConfig, logger logging.Logger) *XPoster {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	base := cfg.HTTPClient
	if base == nil {
		base = clients.NewHTTPClient(timeout)
	}

	oauthCfg := oauth1.NewConfig(cfg.Credentials.APIKey, cfg.Credentials.APISecret)
	token := oauth1.NewToken(cfg.Credentials.AccessToken, cfg.Credentials.AccessTokenSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	client := oauthCfg.Client(ctx, token)
	client.Timeout = timeout

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
		retry.Sleep = cfg.Retry.Sleep
	}
	retry.ShouldRetry = shouldRetry
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WithError(err).WithFields(logging.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("X API call failed, retrying")
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = clients.DefaultCircuitBreakerConfig()
		breakerCfg.Name = "x-api"
	}
	breakerCfg.Logger = logger

	return &XPoster{
		baseURL: baseURL,
		client:  client,
		retry:   retry,
		breaker: clients.NewCircuitBreaker(breakerCfg),
		logger:  logger,
	}
}

// DefaultRetryPolicy retries rate limits and server errors up to three times.
func DefaultRetryPolicy() clients.RetryPolicy {
	return clients.RetryPolicy{
		MaxAttempts:  3,
		BaseDelay:    2 * time.Second,
		MaxDelay:     15 * time.Minute,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

type createRequest struct {
	Text  string     `json:"text"`
	Reply *replySpec `json:"reply,omitempty"`
}

type replySpec struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type deleteResponse struct {
	Data struct {
		Deleted bool `json:"deleted"`
	} `json:"data"`
}

func (p *XPoster) Post(ctx context.Context, req Request) (string, error) {
	body, err := buildCreate(req)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal post: %w", err)
	}

	raw, err := p.do(ctx, http.MethodPost, "/2/tweets", payload, req.TargetID)
	if err != nil {
		return "", err
	}
	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("post response missing id")
	}
	p.logger.WithFields(logging.Fields{
		"kind":      string(req.Kind),
		"id":        out.Data.ID,
		"target_id": req.TargetID,
	}).Info("Posted")
	return out.Data.ID, nil
}

func (p *XPoster) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("delete requires an id")
	}
	raw, err := p.do(ctx, http.MethodDelete, "/2/tweets/"+id, nil, id)
	if err != nil {
		return err
	}
	var out deleteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}
	if !out.Data.Deleted {
		return fmt.Errorf("post %s was not deleted", id)
	}
	p.logger.WithField("id", id).Info("Deleted post")
	return nil
}

func buildCreate(req Request) (createRequest, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return createRequest{}, &models.ContentError{Kind: string(req.Kind), Reason: "empty text"}
	}
	text = generator.Truncate(text, limitFor(req.Kind))

	switch req.Kind {
	case KindTweet:
		return createRequest{Text: text}, nil
	case KindReply, KindThreadSegment:
		if req.TargetID == "" {
			return createRequest{}, fmt.Errorf("%s requires a target id", req.Kind)
		}
		return createRequest{Text: text, Reply: &replySpec{InReplyToTweetID: req.TargetID}}, nil
	case KindQuote:
		if req.TargetID == "" {
			return createRequest{}, errors.New("quote requires a target id")
		}
		return createRequest{Text: text + " " + QuoteURL(req.TargetID)}, nil
	default:
		return createRequest{}, fmt.Errorf("unknown post kind %q", req.Kind)
	}
}

func (p *XPoster) do(ctx context.Context, method, path string, payload []byte, targetID string) ([]byte, error) {
	raw, err := clients.Retry(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		var body []byte
		var callErr error
		err := p.breaker.Call(func() error {
			body, callErr = p.once(ctx, method, path, payload)
			// Client errors say nothing about API health.
			var apiErr *APIError
			if errors.As(callErr, &apiErr) && !apiErr.Temporary() {
				return nil
			}
			return callErr
		})
		if err != nil {
			return nil, err
		}
		return body, callErr
	})
	if err == nil {
		return raw, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case targetID != "" && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusForbidden):
			return nil, &models.TargetGoneError{TargetID: targetID, StatusCode: apiErr.StatusCode}
		case apiErr.Temporary():
			return nil, &models.TransientProviderError{Provider: "x", Err: err, RetryAfter: apiErr.Wait}
		}
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, &models.TransientProviderError{Provider: "x", Err: err}
	}
	return nil, err
}

func (p *XPoster) once(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return body, nil
	}
	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Wait:       waitHint(resp.Header, time.Now()),
	}
}

// APIError is a non-2xx response from the X API.
type APIError struct {
	StatusCode int
	Body       string
	Wait       time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) RetryAfter() time.Duration { return e.Wait }

func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Transport-level failure.
	return true
}

// waitHint reads Retry-After (seconds) or x-rate-limit-reset (unix seconds).
func waitHint(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := strings.TrimSpace(h.Get("x-rate-limit-reset")); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}
