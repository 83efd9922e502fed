// Package orchestrator sequences engagement, standalone and thread actions
// against the quota policy and owns the bot state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cadence/internal/dedup"
	"cadence/internal/generator"
	"cadence/internal/models"
	"cadence/internal/policy"
	"cadence/internal/poster"
	"cadence/internal/scraper"
	"cadence/internal/state"
	"cadence/pkg/clients"
	"cadence/pkg/logging"
)

// Action selects what a run does.
type Action string

const (
	ActionAuto       Action = "auto"
	ActionStandalone Action = "standalone"
	ActionThread     Action = "thread"
	ActionEngage     Action = "engage"
	ActionTest       Action = "test"
)

// ParseAction validates a user-supplied action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAuto, ActionStandalone, ActionThread, ActionEngage, ActionTest:
		return a, nil
	case "":
		return ActionAuto, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Options adjust a single run.
type Options struct {
	// Force bypasses quota checks.
	Force bool
	// Topic overrides the random topic for standalone posts and threads.
	Topic string
}

type Orchestrator struct {
	cfg     Config
	store   state.Store
	gen     generator.Generator
	scraper scraper.Scraper
	poster  poster.Poster
	logger  logging.Logger
	metrics *BotMetrics

	sleep clients.SleepFunc
	now   func() time.Time
	rng   *rand.Rand

	// mu guards st; a cycle holds it only while touching state, never across collaborator calls.
	mu sync.Mutex
	st *models.BotState
}

type Option func(*Orchestrator)

func WithSleep(fn clients.SleepFunc) Option { return func(o *Orchestrator) { o.sleep = fn } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithRand(rng *rand.Rand) Option { return func(o *Orchestrator) { o.rng = rng } }

func WithMetrics(m *BotMetrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func New(cfg Config, store state.Store, gen generator.Generator, scr scraper.Scraper, post poster.Poster, logger logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.withDefaults(),
		store:   store,
		gen:     gen,
		scraper: scr,
		poster:  post,
		logger:  logger,
		sleep:   clients.SleepContext,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load reads persisted state. It must be called before the first run.
func (o *Orchestrator) Load(ctx context.Context) {
	st := o.store.Load(ctx)
	o.mu.Lock()
	o.st = st
	o.mu.Unlock()
	o.logger.WithFields(logging.Fields{
		"daily_tweet_count": st.DailyTweetCount,
		"last_tweet_date":   st.LastTweetDate,
		"seen_items":        len(st.SeenOrder),
		"run_count":         st.RunCount,
	}).Info("Loaded bot state")
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() *models.BotState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.st == nil {
		return models.NewBotState()
	}
	return o.st.Clone()
}

// Persist saves the current state. Cancellation of ctx does not abort the save.
func (o *Orchestrator) Persist(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	o.mu.Lock()
	if o.st == nil {
		o.st = models.NewBotState()
	}
	st := o.st.Clone()
	o.mu.Unlock()
	return o.store.Save(ctx, st)
}

func (o *Orchestrator) withState(fn func(st *models.BotState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.st == nil {
		o.st = models.NewBotState()
	}
	fn(o.st)
}

// RunCycle runs every stage in order: engagement, standalone, thread.
func (o *Orchestrator) RunCycle(ctx context.Context, opts Options) models.CycleReport {
	return o.RunAction(ctx, ActionAuto, opts)
}

// RunAction runs the stages selected by action, then compacts and persists state.
// Individual action failures are recorded in the report and never abort the run.
func (o *Orchestrator) RunAction(ctx context.Context, action Action, opts Options) models.CycleReport {
	report := models.CycleReport{ID: uuid.NewString(), StartedAt: o.now()}
	log := o.logger.WithFields(logging.Fields{
		"cycle_id": report.ID,
		"action":   string(action),
		"force":    opts.Force,
	})
	log.Info("Cycle started")

	o.withState(func(st *models.BotState) { policy.ResetDaily(st, report.StartedAt) })

	switch action {
	case ActionStandalone:
		o.standaloneStage(ctx, opts, &report, log)
	case ActionThread:
		o.threadStage(ctx, opts, &report, log)
	case ActionEngage:
		o.engageStage(ctx, opts, &report, log)
	case ActionTest:
		testOpts := opts
		if testOpts.Topic == "" {
			testOpts.Topic = o.cfg.TestTopic
		}
		o.standaloneStage(ctx, testOpts, &report, log)
		o.pause(ctx, 10*time.Second)
		o.engageStage(ctx, opts, &report, log)
	default:
		o.engageStage(ctx, opts, &report, log)
		o.standaloneStage(ctx, opts, &report, log)
		o.threadStage(ctx, opts, &report, log)
	}

	o.idleStage(ctx, &report, log)
	return report
}

func (o *Orchestrator) idleStage(ctx context.Context, report *models.CycleReport, log *logrus.Entry) {
	var dailyCount int
	o.withState(func(st *models.BotState) {
		report.Evicted = st.CompactSeen(o.cfg.SeenCap, o.cfg.SeenKeep)
		st.RunCount++
		st.LastRunAt = o.now()
		dailyCount = policy.DailyTweetCount(st, st.LastRunAt)
	})
	if report.Evicted > 0 {
		log.WithField("evicted", report.Evicted).Info("Compacted seen set")
	}

	if err := o.Persist(ctx); err != nil {
		report.SaveErr = err
		log.WithError(err).Error("Failed to persist bot state")
	}
	report.FinishedAt = o.now()

	o.mu.Lock()
	st := o.st
	o.metrics.observeCycle(*report, st, dailyCount)
	o.mu.Unlock()

	log.WithFields(logging.Fields{
		"posted":   report.Posted(),
		"actions":  len(report.Actions),
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Cycle finished")
}

func (o *Orchestrator) engageStage(ctx context.Context, opts Options, report *models.CycleReport, log *logrus.Entry) {
	if ctx.Err() != nil {
		return
	}
	now := o.now()
	var allowed bool
	var seen map[string]struct{}
	o.withState(func(st *models.BotState) {
		allowed = opts.Force || o.cfg.Policy.CanEngage(st, now)
		seen = make(map[string]struct{}, len(st.SeenItemIDs))
		for id := range st.SeenItemIDs {
			seen[id] = struct{}{}
		}
	})
	if !allowed {
		log.Debug("Engagement not due")
		return
	}

	candidates := o.scraper.FetchRecent(ctx, o.cfg.ScrapeLimit)
	if len(candidates) == 0 {
		log.Warn("No candidates fetched for engagement")
		return
	}
	fresh := dedup.FilterFresh(candidates, func(id string) bool {
		_, ok := seen[id]
		return ok
	}, o.cfg.Policy.FreshnessWindow, now)
	fresh = dedup.QualityFilter(fresh, o.cfg.Quality)
	if len(fresh) == 0 {
		log.WithField("fetched", len(candidates)).Info("No fresh candidates")
		return
	}

	replies := dedup.Sample(fresh, o.cfg.Replies, o.rng)
	remaining := without(fresh, replies)
	quotes := dedup.Sample(remaining, o.cfg.Quotes, o.rng)

	type job struct {
		kind models.ActionType
		c    models.Candidate
	}
	jobs := make([]job, 0, len(replies)+len(quotes))
	for _, c := range replies {
		jobs = append(jobs, job{models.ActionReply, c})
	}
	for _, c := range quotes {
		jobs = append(jobs, job{models.ActionQuote, c})
	}

	posted := 0
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		rec := o.engage(ctx, j.kind, j.c, log)
		report.Actions = append(report.Actions, rec)
		if rec.Outcome == models.OutcomePosted {
			posted++
		}
		if i < len(jobs)-1 {
			o.pause(ctx, o.throttleDelay())
		}
	}

	if posted > 0 {
		o.withState(func(st *models.BotState) { st.LastEngagementTime = o.now() })
	}
	log.WithFields(logging.Fields{
		"fetched": len(candidates),
		"fresh":   len(fresh),
		"posted":  posted,
	}).Info("Engagement finished")
}

func (o *Orchestrator) engage(ctx context.Context, kind models.ActionType, c models.Candidate, log *logrus.Entry) models.ActionRecord {
	rec := models.ActionRecord{Type: kind, TargetID: c.ID}
	log = log.WithFields(logging.Fields{"type": string(kind), "target_id": c.ID})

	genKind, postKind := generator.KindReply, poster.KindReply
	if kind == models.ActionQuote {
		genKind, postKind = generator.KindQuote, poster.KindQuote
	}
	author := c.AuthorHandle
	if author == "" {
		author = "user"
	}
	res, err := o.gen.Generate(ctx, generator.Request{
		Kind:       genKind,
		SourceText: c.Text,
		Context:    "Post by @" + author,
	})
	if err != nil {
		return o.failed(rec, err, log, "generate")
	}

	id, err := o.poster.Post(ctx, poster.Request{Kind: postKind, Text: res.Text, TargetID: c.ID})
	if err != nil {
		if models.IsTargetGone(err) {
			o.withState(func(st *models.BotState) { st.MarkSeen(c.ID) })
		}
		return o.failed(rec, err, log, "post")
	}

	o.withState(func(st *models.BotState) { st.MarkSeen(c.ID) })
	rec.ResultID = id
	rec.Outcome = models.OutcomePosted
	log.WithField("result_id", id).Info("Engagement posted")
	return rec
}

func (o *Orchestrator) standaloneStage(ctx context.Context, opts Options, report *models.CycleReport, log *logrus.Entry) {
	if ctx.Err() != nil {
		return
	}
	var allowed bool
	o.withState(func(st *models.BotState) {
		allowed = opts.Force || o.cfg.Policy.CanPostStandalone(st, o.now())
	})
	if !allowed {
		log.Debug("Standalone post not due")
		return
	}

	rec := models.ActionRecord{Type: models.ActionStandalone}
	topic := o.pickTopic(opts.Topic, o.cfg.Topics)
	slog := log.WithFields(logging.Fields{"type": string(rec.Type), "topic": topic})

	res, err := o.gen.Generate(ctx, generator.Request{Kind: generator.KindStandalone, SourceText: topic})
	if err != nil {
		report.Actions = append(report.Actions, o.failed(rec, err, slog, "generate"))
		return
	}
	id, err := o.poster.Post(ctx, poster.Request{Kind: poster.KindTweet, Text: res.Text})
	if err != nil {
		report.Actions = append(report.Actions, o.failed(rec, err, slog, "post"))
		return
	}

	o.withState(func(st *models.BotState) { policy.RecordStandalone(st, o.now()) })
	rec.ResultID = id
	rec.Outcome = models.OutcomePosted
	report.Actions = append(report.Actions, rec)
	slog.WithField("result_id", id).Info("Standalone post published")
}

func (o *Orchestrator) threadStage(ctx context.Context, opts Options, report *models.CycleReport, log *logrus.Entry) {
	if ctx.Err() != nil {
		return
	}
	var allowed bool
	o.withState(func(st *models.BotState) {
		allowed = opts.Force || o.cfg.Policy.CanPostThread(st, o.now())
	})
	if !allowed {
		log.Debug("Thread not due")
		return
	}

	rec := models.ActionRecord{Type: models.ActionThread}
	topic := o.pickTopic(opts.Topic, o.cfg.ThreadTopics)
	segments := o.cfg.ThreadMinSegments
	if span := o.cfg.ThreadMaxSegments - o.cfg.ThreadMinSegments; span > 0 {
		segments += o.rng.Intn(span + 1)
	}
	tlog := log.WithFields(logging.Fields{"type": string(rec.Type), "topic": topic, "segments": segments})

	res, err := o.gen.Generate(ctx, generator.Request{
		Kind:        generator.KindThread,
		SourceText:  topic,
		Segments:    segments,
		MinSegments: o.cfg.ThreadMinSegments,
	})
	if err == nil && len(res.Segments) < min(o.cfg.ThreadMinSegments, segments) {
		err = &models.ContentError{
			Kind:   string(generator.KindThread),
			Reason: fmt.Sprintf("thread too short: %d segments", len(res.Segments)),
		}
	}
	if err != nil {
		report.Actions = append(report.Actions, o.failed(rec, err, tlog, "generate"))
		return
	}

	ids, err := poster.PostThread(ctx, o.poster, res.Segments, poster.ThreadOptions{
		Delay:  o.cfg.ThreadSegmentDelay,
		Sleep:  o.sleep,
		Logger: o.logger,
	})
	rec.ResultIDs = ids
	if len(ids) > 0 {
		rec.ResultID = ids[0]
		o.withState(func(st *models.BotState) { st.LastThreadTime = o.now() })
	}
	if err != nil && len(ids) == 0 {
		report.Actions = append(report.Actions, o.failed(rec, err, tlog, "post"))
		return
	}

	rec.Outcome = models.OutcomePosted
	if err != nil {
		rec.Err = err
		rec.Reason = err.Error()
		tlog.WithError(err).WithField("posted", len(ids)).Warn("Thread stopped early")
	}
	report.Actions = append(report.Actions, rec)
	tlog.WithField("posted", len(ids)).Info("Thread published")
}

// failed fills in a record for err. Unusable content is skipped, everything else failed.
func (o *Orchestrator) failed(rec models.ActionRecord, err error, log *logrus.Entry, step string) models.ActionRecord {
	rec.Err = err
	rec.Reason = step + ": " + err.Error()
	rec.Outcome = models.OutcomeFailed
	entry := log.WithError(err).WithField("step", step)
	switch {
	case models.IsContentError(err):
		rec.Outcome = models.OutcomeSkipped
		entry.Warn("Action skipped")
	case models.IsTargetGone(err):
		entry.Warn("Target no longer available")
	case errors.Is(err, context.Canceled):
		entry.Info("Action cancelled")
	default:
		entry.Error("Action failed")
	}
	return rec
}

func (o *Orchestrator) pickTopic(forced string, pool []string) string {
	if strings.TrimSpace(forced) != "" {
		return forced
	}
	return pool[o.rng.Intn(len(pool))]
}

func (o *Orchestrator) throttleDelay() time.Duration {
	lo, hi := o.cfg.ActionDelayMin, o.cfg.ActionDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(o.rng.Int63n(int64(hi-lo)))
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	_ = o.sleep(ctx, d)
}

func without(all, picked []models.Candidate) []models.Candidate {
	skip := make(map[string]struct{}, len(picked))
	for _, c := range picked {
		skip[c.ID] = struct{}{}
	}
	out := make([]models.Candidate, 0, len(all))
	for _, c := range all {
		if _, ok := skip[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}
