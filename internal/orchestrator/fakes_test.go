package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"cadence/internal/generator"
	"cadence/internal/models"
	"cadence/internal/poster"
)

var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.Local)

func quietLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

type memStore struct {
	mu      sync.Mutex
	initial *models.BotState
	saved   *models.BotState
	saves   int
	err     error
}

func (m *memStore) Load(context.Context) *models.BotState {
	if m.initial == nil {
		return models.NewBotState()
	}
	return m.initial.Clone()
}

func (m *memStore) Save(_ context.Context, st *models.BotState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.saved = st.Clone()
	return nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []generator.Request
	err      map[generator.Kind]error
	segments []string
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request) (generator.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if err := g.err[req.Kind]; err != nil {
		return generator.Result{}, err
	}
	if req.Kind == generator.KindThread {
		if g.segments != nil {
			return generator.Result{Segments: g.segments}, nil
		}
		segs := make([]string, req.Segments)
		for i := range segs {
			segs[i] = fmt.Sprintf("segment %d", i+1)
		}
		return generator.Result{Segments: segs}, nil
	}
	return generator.Result{Text: string(req.Kind) + " about " + req.SourceText}, nil
}

type fakeScraper struct {
	candidates []models.Candidate
	calls      int
}

func (s *fakeScraper) FetchRecent(_ context.Context, limit int) []models.Candidate {
	s.calls++
	if len(s.candidates) > limit {
		return s.candidates[:limit]
	}
	return s.candidates
}

type fakePoster struct {
	mu       sync.Mutex
	requests []poster.Request
	// failOn maps a 1-based call number to the error it returns.
	failOn map[int]error
	// failTarget fails every post aimed at the given target.
	failTarget map[string]error
}

func (p *fakePoster) Post(_ context.Context, req poster.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	if err := p.failOn[n]; err != nil {
		return "", err
	}
	if err := p.failTarget[req.TargetID]; err != nil && (req.Kind == poster.KindReply || req.Kind == poster.KindQuote) {
		return "", err
	}
	return "post-" + strconv.Itoa(n), nil
}

func (p *fakePoster) Delete(context.Context, string) error { return nil }

func (p *fakePoster) kinds() []poster.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]poster.Kind, len(p.requests))
	for i, r := range p.requests {
		out[i] = r.Kind
	}
	return out
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	orch    *Orchestrator
	store   *memStore
	gen     *fakeGenerator
	scraper *fakeScraper
	poster  *fakePoster
	sleeps  *sleepRecorder
}

func newHarness(cfg Config, initial *models.BotState) *harness {
	h := &harness{
		store:   &memStore{initial: initial},
		gen:     &fakeGenerator{},
		scraper: &fakeScraper{},
		poster:  &fakePoster{},
		sleeps:  &sleepRecorder{},
	}
	h.orch = New(cfg, h.store, h.gen, h.scraper, h.poster, quietLogger(),
		WithSleep(h.sleeps.sleep),
		WithClock(func() time.Time { return testNow }),
		WithRand(rand.New(rand.NewSource(7))),
	)
	h.orch.Load(context.Background())
	return h
}

func candidates(n int) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = models.Candidate{
			ID:           "c" + strconv.Itoa(i),
			AuthorHandle: "author" + strconv.Itoa(i),
			Text:         "A thoughtful observation about building reliable systems, number " + strconv.Itoa(i),
			CreatedAt:    testNow.Add(-time.Duration(i+1) * time.Minute).Format(time.RFC3339),
		}
	}
	return out
}

var errBoom = errors.New("boom")
