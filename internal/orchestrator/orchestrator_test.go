package orchestrator

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"cadence/internal/generator"
	"cadence/internal/models"
	"cadence/internal/policy"
	"cadence/internal/poster"
	"cadence/pkg/monitoring"
)

func TestStandalone_ThirdToFourthThenBlocked(t *testing.T) {
	st := models.NewBotState()
	st.DailyTweetCount = 3
	st.LastTweetDate = policy.Date(testNow)
	h := newHarness(DefaultConfig(), st)

	report := h.orch.RunAction(context.Background(), ActionStandalone, Options{})

	require.Len(t, report.Actions, 1)
	require.Equal(t, models.OutcomePosted, report.Actions[0].Outcome)
	snap := h.orch.Snapshot()
	require.Equal(t, 4, snap.DailyTweetCount)
	require.Equal(t, testNow, snap.LastStandaloneTweetTime)
	require.False(t, policy.Default().CanPostStandalone(snap, testNow))

	report = h.orch.RunAction(context.Background(), ActionStandalone, Options{})
	require.Empty(t, report.Actions)
	require.Len(t, h.poster.requests, 1)
	require.Equal(t, 4, h.store.saved.DailyTweetCount)
}

func TestStandalone_FailureDoesNotCount(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.poster.failOn = map[int]error{1: errBoom}

	report := h.orch.RunAction(context.Background(), ActionStandalone, Options{})

	require.Equal(t, models.OutcomeFailed, report.Actions[0].Outcome)
	require.ErrorIs(t, report.Actions[0].Err, errBoom)
	require.Zero(t, h.orch.Snapshot().DailyTweetCount)
	require.True(t, h.orch.Snapshot().LastStandaloneTweetTime.IsZero())
}

func TestStandalone_ContentErrorIsSkipped(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.gen.err = map[generator.Kind]error{generator.KindStandalone: &models.ContentError{Kind: "standalone", Reason: "empty"}}

	report := h.orch.RunAction(context.Background(), ActionStandalone, Options{})

	require.Equal(t, models.OutcomeSkipped, report.Actions[0].Outcome)
	require.Empty(t, h.poster.requests)
}

func TestStandalone_ForceAndTopic(t *testing.T) {
	st := models.NewBotState()
	st.DailyTweetCount = 4
	st.LastTweetDate = policy.Date(testNow)
	h := newHarness(DefaultConfig(), st)

	report := h.orch.RunAction(context.Background(), ActionStandalone, Options{Force: true, Topic: "Go generics"})

	require.Equal(t, models.OutcomePosted, report.Actions[0].Outcome)
	require.Equal(t, "Go generics", h.gen.requests[0].SourceText)
	require.Equal(t, 5, h.orch.Snapshot().DailyTweetCount)
}

func TestStaleDateResetsCounter(t *testing.T) {
	st := models.NewBotState()
	st.DailyTweetCount = 4
	st.LastTweetDate = policy.Date(testNow.AddDate(0, 0, -1))
	h := newHarness(DefaultConfig(), st)

	h.orch.RunAction(context.Background(), ActionStandalone, Options{})

	snap := h.orch.Snapshot()
	require.Equal(t, 1, snap.DailyTweetCount)
	require.Equal(t, policy.Date(testNow), snap.LastTweetDate)
}

func TestThread_PartialFailureKeepsPostedSegments(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.gen.segments = []string{"one", "two", "three", "four", "five"}
	h.poster.failOn = map[int]error{3: errBoom}

	report := h.orch.RunAction(context.Background(), ActionThread, Options{})

	require.Len(t, report.Actions, 1)
	rec := report.Actions[0]
	require.Equal(t, models.ActionThread, rec.Type)
	require.Equal(t, []string{"post-1", "post-2"}, rec.ResultIDs)
	require.Equal(t, models.OutcomePosted, rec.Outcome)
	require.ErrorIs(t, rec.Err, errBoom)
	require.Equal(t, testNow, h.orch.Snapshot().LastThreadTime)

	reqs := h.poster.requests
	require.Len(t, reqs, 3)
	require.Equal(t, poster.KindTweet, reqs[0].Kind)
	require.Equal(t, "post-1", reqs[1].TargetID)
	require.Equal(t, "post-2", reqs[2].TargetID)
}

func TestThread_TooFewSegmentsIsSkipped(t *testing.T) {
	for _, segs := range [][]string{{"only one"}, {"one", "two", "three", "four"}} {
		h := newHarness(DefaultConfig(), nil)
		h.gen.segments = segs

		report := h.orch.RunAction(context.Background(), ActionThread, Options{})

		require.Len(t, report.Actions, 1)
		require.Equal(t, models.OutcomeSkipped, report.Actions[0].Outcome)
		require.True(t, models.IsContentError(report.Actions[0].Err))
		require.Empty(t, h.poster.requests)
		require.True(t, h.orch.Snapshot().LastThreadTime.IsZero())
		require.Equal(t, 5, h.gen.requests[0].MinSegments)
	}
}

func TestThread_FirstSegmentFailsLeavesTimestamp(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.poster.failOn = map[int]error{1: errBoom}

	report := h.orch.RunAction(context.Background(), ActionThread, Options{})

	require.Equal(t, models.OutcomeFailed, report.Actions[0].Outcome)
	require.Empty(t, report.Actions[0].ResultIDs)
	require.True(t, h.orch.Snapshot().LastThreadTime.IsZero())
}

func TestThread_SegmentCountWithinRange(t *testing.T) {
	for i := 0; i < 10; i++ {
		h := newHarness(DefaultConfig(), nil)
		h.orch.RunAction(context.Background(), ActionThread, Options{Force: true})
		require.Len(t, h.gen.requests, 1)
		n := h.gen.requests[0].Segments
		require.GreaterOrEqual(t, n, 5)
		require.LessOrEqual(t, n, 7)
		require.Len(t, h.poster.requests, n)
	}
}

func TestThread_NotDueWithinTwoCalendarDays(t *testing.T) {
	st := models.NewBotState()
	st.LastThreadTime = testNow.AddDate(0, 0, -1)
	h := newHarness(DefaultConfig(), st)

	report := h.orch.RunAction(context.Background(), ActionThread, Options{})
	require.Empty(t, report.Actions)
	require.Empty(t, h.gen.requests)
}

func TestEngage_RepliesThenQuote(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.scraper.candidates = candidates(6)

	report := h.orch.RunAction(context.Background(), ActionEngage, Options{})

	require.Len(t, report.Actions, 3)
	require.Equal(t, models.ActionReply, report.Actions[0].Type)
	require.Equal(t, models.ActionReply, report.Actions[1].Type)
	require.Equal(t, models.ActionQuote, report.Actions[2].Type)
	require.Equal(t, []poster.Kind{poster.KindReply, poster.KindReply, poster.KindQuote}, h.poster.kinds())

	targets := map[string]bool{}
	snap := h.orch.Snapshot()
	for _, a := range report.Actions {
		require.Equal(t, models.OutcomePosted, a.Outcome)
		require.False(t, targets[a.TargetID], "each candidate is acted on once")
		targets[a.TargetID] = true
		require.True(t, snap.HasSeen(a.TargetID))
	}
	require.Equal(t, testNow, snap.LastEngagementTime)
	require.Len(t, h.sleeps.waits, 2, "throttle between actions only")
	for _, d := range h.sleeps.waits {
		require.GreaterOrEqual(t, d, 30*time.Second)
		require.Less(t, d, 90*time.Second)
	}
	require.Contains(t, h.gen.requests[0].Context, "@author")
}

func TestEngage_SkipsSeenAndStale(t *testing.T) {
	st := models.NewBotState()
	cands := candidates(4)
	st.MarkSeen(cands[0].ID)
	st.MarkSeen(cands[1].ID)
	cands[2].CreatedAt = testNow.Add(-48 * time.Hour).Format(time.RFC3339)
	h := newHarness(DefaultConfig(), st)
	h.scraper.candidates = cands

	report := h.orch.RunAction(context.Background(), ActionEngage, Options{})

	require.Len(t, report.Actions, 1)
	require.Equal(t, "c3", report.Actions[0].TargetID)
	require.Equal(t, models.ActionReply, report.Actions[0].Type)
}

func TestEngage_FailureLeavesUnseenButTargetGoneMarksSeen(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.scraper.candidates = candidates(2)
	h.poster.failTarget = map[string]error{
		"c0": errBoom,
		"c1": &models.TargetGoneError{TargetID: "c1", StatusCode: 404},
	}

	report := h.orch.RunAction(context.Background(), ActionEngage, Options{})

	require.Len(t, report.Actions, 2)
	snap := h.orch.Snapshot()
	require.False(t, snap.HasSeen("c0"))
	require.True(t, snap.HasSeen("c1"))
	require.True(t, snap.LastEngagementTime.IsZero(), "nothing posted")
	for _, a := range report.Actions {
		require.Equal(t, models.OutcomeFailed, a.Outcome)
	}
}

func TestEngage_NotDue(t *testing.T) {
	st := models.NewBotState()
	st.LastEngagementTime = testNow.Add(-10 * time.Minute)
	h := newHarness(DefaultConfig(), st)
	h.scraper.candidates = candidates(3)

	report := h.orch.RunAction(context.Background(), ActionEngage, Options{})
	require.Empty(t, report.Actions)
	require.Zero(t, h.scraper.calls)

	h.orch.RunAction(context.Background(), ActionEngage, Options{Force: true})
	require.Equal(t, 1, h.scraper.calls)
}

func TestEngage_EmptyScrape(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	report := h.orch.RunAction(context.Background(), ActionEngage, Options{})
	require.Empty(t, report.Actions)
	require.True(t, h.orch.Snapshot().LastEngagementTime.IsZero())
}

func TestCycle_StageOrder(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.scraper.candidates = candidates(3)

	report := h.orch.RunCycle(context.Background(), Options{})

	var types []models.ActionType
	for _, a := range report.Actions {
		types = append(types, a.Type)
	}
	require.Equal(t, []models.ActionType{
		models.ActionReply, models.ActionReply, models.ActionQuote,
		models.ActionStandalone, models.ActionThread,
	}, types)
	require.Equal(t, 1, h.store.saves)
	require.Equal(t, 1, h.store.saved.RunCount)
	require.NotEmpty(t, report.ID)
}

func TestCycle_EvictsSeenSet(t *testing.T) {
	st := models.NewBotState()
	for i := 0; i < 1001; i++ {
		st.MarkSeen("id" + strconv.Itoa(i))
	}
	h := newHarness(DefaultConfig(), st)

	report := h.orch.RunAction(context.Background(), ActionEngage, Options{})

	require.Equal(t, 501, report.Evicted)
	require.LessOrEqual(t, len(h.orch.Snapshot().SeenOrder), 500)
	require.LessOrEqual(t, len(h.store.saved.SeenItemIDs), 500)
	require.True(t, h.store.saved.HasSeen("id1000"))
}

func TestCycle_PersistFailureDoesNotAbort(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.store.err = &models.PersistenceError{Path: "x", Err: errBoom}

	report := h.orch.RunAction(context.Background(), ActionStandalone, Options{})

	require.True(t, models.IsPersistence(report.SaveErr))
	require.Equal(t, models.OutcomePosted, report.Actions[0].Outcome)
	require.Equal(t, 1, h.orch.Snapshot().DailyTweetCount)
}

func TestCycle_CancelledStillPersists(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.orch.RunCycle(ctx, Options{})

	require.Empty(t, report.Actions)
	require.Equal(t, 1, h.store.saves)
}

func TestTestAction_UsesTestTopic(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.scraper.candidates = candidates(3)

	report := h.orch.RunAction(context.Background(), ActionTest, Options{})

	require.Equal(t, models.ActionStandalone, report.Actions[0].Type)
	require.Equal(t, "Test - AI", h.gen.requests[0].SourceText)
	require.Contains(t, h.sleeps.waits, 10*time.Second)
	require.Len(t, report.Actions, 4)
}

func TestPersistWithoutLoad(t *testing.T) {
	store := &memStore{}
	o := New(DefaultConfig(), store, &fakeGenerator{}, &fakeScraper{}, &fakePoster{}, quietLogger())

	require.NoError(t, o.Persist(context.Background()))
	require.Equal(t, 1, store.saves)
	require.Zero(t, store.saved.DailyTweetCount)
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"auto", "Standalone", " thread ", "engage", "test"} {
		_, err := ParseAction(s)
		require.NoError(t, err, s)
	}
	a, err := ParseAction("")
	require.NoError(t, err)
	require.Equal(t, ActionAuto, a)
	_, err = ParseAction("poll")
	require.Error(t, err)
}

func TestMetricsObserveCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := monitoring.NewMetricsCollectorWithRegistry("cadence_test", "v", "c", reg)
	m := NewBotMetrics(mc)

	h := newHarness(DefaultConfig(), nil)
	h.orch.metrics = m
	h.scraper.candidates = candidates(3)
	h.orch.RunCycle(context.Background(), Options{})

	require.Equal(t, 1.0, testutil.ToFloat64(m.Cycles))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("reply", "posted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("standalone", "posted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DailyTweets))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SeenItems))

	var nilMetrics *BotMetrics
	nilMetrics.observeCycle(models.CycleReport{}, models.NewBotState(), 0)
}
