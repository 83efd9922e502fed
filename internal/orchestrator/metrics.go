package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"cadence/internal/models"
	"cadence/pkg/monitoring"
)

type BotMetrics struct {
	Cycles        prometheus.Counter
	Actions       *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	SeenItems     prometheus.Gauge
	DailyTweets   prometheus.Gauge
	SaveFailures  prometheus.Counter
}

// NewBotMetrics registers the bot metrics on mc under its namespace.
func NewBotMetrics(mc *monitoring.MetricsCollector) *BotMetrics {
	ns := mc.Namespace()
	m := &BotMetrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: ns + "_cycles_total",
			Help: "Completed orchestrator cycles",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: ns + "_actions_total",
			Help: "Actions by type and outcome",
		}, []string{"type", "outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    ns + "_cycle_duration_seconds",
			Help:    "Wall time of a cycle including throttling delays",
			Buckets: []float64{1, 5, 30, 60, 120, 300, 600, 1200},
		}),
		SeenItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ns + "_seen_items",
			Help: "Size of the seen-id set",
		}),
		DailyTweets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ns + "_daily_tweets",
			Help: "Standalone posts made today",
		}),
		SaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: ns + "_state_save_failures_total",
			Help: "Failed state saves",
		}),
	}
	mc.RegisterCustomMetric("cycles", m.Cycles)
	mc.RegisterCustomMetric("actions", m.Actions)
	mc.RegisterCustomMetric("cycle_duration", m.CycleDuration)
	mc.RegisterCustomMetric("seen_items", m.SeenItems)
	mc.RegisterCustomMetric("daily_tweets", m.DailyTweets)
	mc.RegisterCustomMetric("state_save_failures", m.SaveFailures)
	return m
}

func (m *BotMetrics) observeCycle(r models.CycleReport, st *models.BotState, dailyCount int) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	for _, a := range r.Actions {
		m.Actions.WithLabelValues(string(a.Type), string(a.Outcome)).Inc()
	}
	m.SeenItems.Set(float64(len(st.SeenOrder)))
	m.DailyTweets.Set(float64(dailyCount))
	if r.SaveErr != nil {
		m.SaveFailures.Inc()
	}
}
