package orchestrator

import (
	"time"

	"cadence/internal/dedup"
	"cadence/internal/policy"
)

// Config tunes one orchestrator. Zero fields are filled from DefaultConfig.
type Config struct {
	Policy policy.Policy

	ScrapeLimit int
	Replies     int
	Quotes      int

	ThreadMinSegments int
	ThreadMaxSegments int
	// ThreadSegmentDelay is waited between thread segments.
	ThreadSegmentDelay time.Duration

	// ActionDelayMin..ActionDelayMax bounds the randomized pause between engagement actions.
	ActionDelayMin time.Duration
	ActionDelayMax time.Duration

	SeenCap  int
	SeenKeep int

	Topics       []string
	ThreadTopics []string
	TestTopic    string

	Quality dedup.QualityRules

	// TickInterval is the Runner's pause between cycles.
	TickInterval time.Duration
}

var defaultTopics = []string{
	"Artificial intelligence and machine learning",
	"Emerging technology trends",
	"The future of AI and its impact",
	"Ethics and responsibility in AI",
	"Practical applications of machine learning",
	"Innovation and digital transformation",
	"Data science and predictive analytics",
	"Intelligent automation",
}

var defaultThreadTopics = []string{
	"How AI evolved over the last decade",
	"Understanding neural networks and deep learning",
	"AI ethics and responsible development",
	"The future of human-AI collaboration",
	"Machine learning in everyday life",
	"AI research breakthroughs and their implications",
	"AI's impact across industries",
	"Building trustworthy AI systems",
}

func DefaultConfig() Config {
	return Config{
		Policy:             policy.Default(),
		ScrapeLimit:        50,
		Replies:            2,
		Quotes:             1,
		ThreadMinSegments:  5,
		ThreadMaxSegments:  7,
		ThreadSegmentDelay: 3 * time.Second,
		ActionDelayMin:     30 * time.Second,
		ActionDelayMax:     90 * time.Second,
		SeenCap:            1000,
		SeenKeep:           500,
		Topics:             defaultTopics,
		ThreadTopics:       defaultThreadTopics,
		TestTopic:          "Test - AI",
		Quality:            dedup.DefaultQualityRules(),
		TickInterval:       15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Policy.MaxDailyStandalone == 0 && c.Policy.ThreadIntervalDays == 0 {
		c.Policy = d.Policy
	}
	if c.ScrapeLimit <= 0 {
		c.ScrapeLimit = d.ScrapeLimit
	}
	if c.Replies < 0 {
		c.Replies = 0
	}
	if c.Quotes < 0 {
		c.Quotes = 0
	}
	if c.ThreadMinSegments <= 0 {
		c.ThreadMinSegments = d.ThreadMinSegments
	}
	if c.ThreadMaxSegments < c.ThreadMinSegments {
		c.ThreadMaxSegments = c.ThreadMinSegments
	}
	if c.ActionDelayMax < c.ActionDelayMin {
		c.ActionDelayMax = c.ActionDelayMin
	}
	if c.SeenCap <= 0 {
		c.SeenCap = d.SeenCap
	}
	if c.SeenKeep <= 0 || c.SeenKeep > c.SeenCap {
		c.SeenKeep = c.SeenCap / 2
	}
	if len(c.Topics) == 0 {
		c.Topics = d.Topics
	}
	if len(c.ThreadTopics) == 0 {
		c.ThreadTopics = d.ThreadTopics
	}
	if c.TestTopic == "" {
		c.TestTopic = d.TestTopic
	}
	if c.Quality.MinLength == 0 && c.Quality.MinPassing == 0 {
		c.Quality = d.Quality
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	return c
}
