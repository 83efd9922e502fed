// Package scraper reads recent posts from the home timeline with a headless browser.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"cadence/internal/models"
	"cadence/pkg/clients"
	"cadence/pkg/logging"
)

// Media URLs are read from attributes, so the bytes are never needed.
var blockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeMedia,
}

// Scraper fetches candidates. Transient failures yield an empty slice.
type Scraper interface {
	FetchRecent(ctx context.Context, limit int) []models.Candidate
}

type Config struct {
	Cookies     string
	TimelineURL string
	CookieHost  string
	Headless    bool
	// BrowserBin is an explicit Chrome binary; empty lets the launcher find or download one.
	BrowserBin string
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL   string
	ScrollRounds int
	ScrollPause  time.Duration
	PageTimeout  time.Duration
	// LaunchTimeout bounds starting Chrome; a hung launch is killed.
	LaunchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TimelineURL:  "https://x.com/home",
		CookieHost:   ".x.com",
		Headless:     true,
		ScrollRounds: 6,
		ScrollPause:  1500 * time.Millisecond,
		PageTimeout:  45 * time.Second,

		LaunchTimeout: 30 * time.Second,
	}
}

// session is one connected browser. A failed session is discarded and the next
// fetch opens a fresh one.
type session interface {
	timeline(ctx context.Context, limit int) ([]rawTweet, error)
	Close() error
}

type opener func(ctx context.Context) (session, error)

// BrowserScraper drives Chrome through go-rod. The browser is started lazily
// and reused across calls until a scrape fails.
type BrowserScraper struct {
	cfg     Config
	cookies map[string]string
	logger  logging.Logger
	sleep   clients.SleepFunc
	open    opener

	mu   sync.Mutex
	sess session
}

func NewBrowserScraper(cfg Config, logger logging.Logger) *BrowserScraper {
	def := DefaultConfig()
	if cfg.TimelineURL == "" {
		cfg.TimelineURL = def.TimelineURL
	}
	if cfg.CookieHost == "" {
		cfg.CookieHost = def.CookieHost
	}
	if cfg.ScrollRounds <= 0 {
		cfg.ScrollRounds = def.ScrollRounds
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = def.ScrollPause
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = def.LaunchTimeout
	}
	s := &BrowserScraper{
		cfg:     cfg,
		cookies: ParseCookies(cfg.Cookies),
		logger:  logger,
		sleep:   clients.SleepContext,
	}
	s.open = s.openRod
	return s
}

// Validate checks the configured session cookies.
func (s *BrowserScraper) Validate() error {
	missing, warnings := ValidateCookies(s.cookies)
	for _, w := range warnings {
		s.logger.Warn(w)
	}
	if len(missing) > 0 {
		return &models.FatalConfigError{Reason: "missing session cookies: " + strings.Join(missing, ", ")}
	}
	return nil
}

func (s *BrowserScraper) FetchRecent(ctx context.Context, limit int) []models.Candidate {
	if limit <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()

	raw, err := s.scrape(ctx, limit)
	if err != nil {
		s.logger.WithError(err).Warn("Timeline scrape failed")
		return nil
	}
	out := toCandidates(raw, limit)
	s.logger.WithFields(logging.Fields{
		"found": len(raw),
		"kept":  len(out),
	}).Info("Fetched timeline candidates")
	return out
}

func (s *BrowserScraper) scrape(ctx context.Context, limit int) ([]rawTweet, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := sess.timeline(ctx, limit)
	if err != nil {
		// A crashed browser or dropped CDP connection fails every later page, so
		// start over unless the caller simply gave up.
		if !errors.Is(err, context.Canceled) || ctx.Err() == nil {
			s.discard(sess)
		}
		return nil, err
	}
	return raw, nil
}

func (s *BrowserScraper) session(ctx context.Context) (session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return s.sess, nil
	}
	sess, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.sess = sess
	return sess, nil
}

func (s *BrowserScraper) discard(sess session) {
	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
	}
	s.mu.Unlock()
	if err := sess.Close(); err != nil {
		s.logger.WithError(err).Debug("Closing failed browser session")
	}
	s.logger.Warn("Browser session discarded; relaunching on next fetch")
}

// Close shuts the browser down if one was started.
func (s *BrowserScraper) Close() error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}

// rodSession owns a Chrome process (or a remote connection) for its lifetime.
type rodSession struct {
	cfg     Config
	cookies []*proto.NetworkCookieParam
	sleep   clients.SleepFunc

	browser  *rod.Browser
	launcher *launcher.Launcher
	cancel   context.CancelFunc
}

func (s *BrowserScraper) openRod(ctx context.Context) (session, error) {
	// The process lives as long as the session, not the fetch that started it.
	life, cancel := context.WithCancel(context.Background())
	rs := &rodSession{cfg: s.cfg, cookies: s.cookieParams(), sleep: s.sleep, cancel: cancel}

	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		rs.launcher = launcher.New().
			Context(life).
			Headless(s.cfg.Headless).
			Set("disable-gpu").
			Set("no-sandbox").
			Set("disable-dev-shm-usage")
		if s.cfg.BrowserBin != "" {
			rs.launcher = rs.launcher.Bin(s.cfg.BrowserBin)
		}
		u, err := launchWithin(ctx, s.cfg.LaunchTimeout, rs.launcher)
		if err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(life)
	if err := browser.Connect(); err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	rs.browser = browser
	s.logger.WithField("remote", s.cfg.ControlURL != "").Info("Browser session started")
	return rs, nil
}

// launchWithin bounds l.Launch by ctx and timeout, killing the process on expiry.
func launchWithin(ctx context.Context, timeout time.Duration, l *launcher.Launcher) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		u, err := l.Launch()
		done <- result{u, err}
	}()
	select {
	case r := <-done:
		return r.url, r.err
	case <-ctx.Done():
		l.Kill()
		return "", ctx.Err()
	}
}

func (rs *rodSession) timeline(ctx context.Context, limit int) ([]rawTweet, error) {
	page, err := stealth.Page(rs.browser)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()
	page = page.Context(ctx)

	router := page.HijackRequests()
	for _, rt := range blockedResourceTypes {
		_ = router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.SetCookies(rs.cookies); err != nil {
		return nil, fmt.Errorf("set cookies: %w", err)
	}
	if err := page.Navigate(rs.cfg.TimelineURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	seen := make(map[string]struct{})
	var all []rawTweet
	for round := 0; round < rs.cfg.ScrollRounds && len(all) < limit; round++ {
		if err := rs.sleep(ctx, rs.cfg.ScrollPause); err != nil {
			return all, nil
		}
		batch, err := extract(page)
		if err != nil {
			return nil, err
		}
		for _, t := range batch {
			if _, dup := seen[t.ID]; dup || t.ID == "" {
				continue
			}
			seen[t.ID] = struct{}{}
			all = append(all, t)
		}
		if _, err := page.Evaluate(&rod.EvalOptions{JS: `() => window.scrollBy(0, window.innerHeight * 2)`}); err != nil {
			return all, nil
		}
	}
	return all, nil
}

func (rs *rodSession) Close() error {
	var err error
	if rs.browser != nil {
		err = rs.browser.Close()
	}
	rs.cancel()
	if rs.launcher != nil {
		rs.launcher.Kill()
		rs.launcher.Cleanup()
	}
	return err
}

func (s *BrowserScraper) cookieParams() []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(s.cookies))
	for name, value := range s.cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   name,
			Value:  value,
			Domain: s.cfg.CookieHost,
			Path:   "/",
			Secure: true,
		})
	}
	return params
}

const extractJS = `() => {
	const out = [];
	for (const art of document.querySelectorAll('article[data-testid="tweet"]')) {
		const link = [...art.querySelectorAll('a[href*="/status/"]')].find(a => a.querySelector('time'));
		const time = art.querySelector('time[datetime]');
		const text = art.querySelector('[data-testid="tweetText"]');
		const media = [...art.querySelectorAll('[data-testid="tweetPhoto"] img')].map(i => i.src);
		out.push({
			href: link ? link.getAttribute('href') : '',
			text: text ? text.innerText : '',
			created_at: time ? time.getAttribute('datetime') : '',
			media: media,
		});
	}
	return out;
}`

func extract(page *rod.Page) ([]rawTweet, error) {
	res, err := page.Evaluate(&rod.EvalOptions{JS: extractJS, ByValue: true})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return decodeTweets(raw)
}

type rawTweet struct {
	ID        string   `json:"-"`
	Author    string   `json:"-"`
	Href      string   `json:"href"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"created_at"`
	Media     []string `json:"media"`
}

// decodeTweets parses the extraction result and derives id and author from
// the status link ("/handle/status/123").
func decodeTweets(raw []byte) ([]rawTweet, error) {
	var tweets []rawTweet
	if err := json.Unmarshal(raw, &tweets); err != nil {
		return nil, fmt.Errorf("decode tweets: %w", err)
	}
	for i := range tweets {
		tweets[i].Author, tweets[i].ID = parseStatusHref(tweets[i].Href)
	}
	return tweets, nil
}

func parseStatusHref(href string) (author, id string) {
	href = strings.TrimPrefix(href, "https://x.com")
	href = strings.TrimPrefix(href, "https://twitter.com")
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i+1] == "status" {
			return parts[i], parts[i+2]
		}
	}
	return "", ""
}

func toCandidates(raw []rawTweet, limit int) []models.Candidate {
	out := make([]models.Candidate, 0, min(limit, len(raw)))
	for _, t := range raw {
		text := strings.TrimSpace(t.Text)
		if t.ID == "" || text == "" {
			continue
		}
		out = append(out, models.Candidate{
			ID:           t.ID,
			AuthorHandle: t.Author,
			Text:         text,
			CreatedAt:    t.CreatedAt,
			URL:          "https://x.com/" + t.Author + "/status/" + t.ID,
			Media:        t.Media,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}
