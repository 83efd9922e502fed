// Package botconfig assembles the bot's configuration from the environment
// and an optional YAML file.
package botconfig

import (
	"strings"

	"github.com/spf13/viper"

	"cadence/internal/models"
	"cadence/internal/orchestrator"
	"cadence/internal/poster"
	"cadence/internal/scraper"
	"cadence/internal/state"
	"cadence/pkg/config"
	"cadence/pkg/llm"
	"cadence/pkg/redis"
)

const (
	DefaultPort    = "8080"
	DefaultLogFile = "bot.log"
)

type Config struct {
	Port    string
	LogFile string
	// Loop makes serve also run cycles on Orchestrator.TickInterval.
	Loop bool

	LLM          llm.Config
	X            poster.Credentials
	XBaseURL     string
	Scraper      scraper.Config
	State        state.Config
	Orchestrator orchestrator.Config
}

// Load reads the environment. Call config.LoadEnv first to pick up .env files.
func Load() Config {
	orch := orchestrator.DefaultConfig()
	p := &orch.Policy
	p.MaxDailyStandalone = config.GetEnvInt("MAX_DAILY_TWEETS", p.MaxDailyStandalone)
	p.ThreadIntervalDays = config.GetEnvInt("THREAD_INTERVAL_DAYS", p.ThreadIntervalDays)
	p.MinEngageInterval = config.GetEnvDuration("ENGAGE_INTERVAL", p.MinEngageInterval)
	p.FreshnessWindow = config.GetEnvDuration("FRESHNESS_WINDOW", p.FreshnessWindow)
	p.StandaloneMinSpacing = config.GetEnvDuration("STANDALONE_SPACING", p.StandaloneMinSpacing)
	p.ThreadHour = config.GetEnvInt("THREAD_HOUR", p.ThreadHour)
	orch.Replies = config.GetEnvInt("ENGAGE_REPLIES", orch.Replies)
	orch.Quotes = config.GetEnvInt("ENGAGE_QUOTES", orch.Quotes)
	orch.ScrapeLimit = config.GetEnvInt("SCRAPE_LIMIT", orch.ScrapeLimit)
	orch.TickInterval = config.GetEnvDuration("TICK_INTERVAL", orch.TickInterval)
	if topics := config.GetEnvList("TOPICS"); len(topics) > 0 {
		orch.Topics = topics
	}

	sc := scraper.DefaultConfig()
	sc.Cookies = config.GetEnv("X_COOKIES", config.GetEnv("TWITTER_COOKIES", ""))
	sc.Headless = config.GetEnvBool("SCRAPER_HEADLESS", sc.Headless)
	sc.BrowserBin = config.GetEnv("CHROME_BIN", "")
	sc.ControlURL = config.GetEnv("BROWSER_CONTROL_URL", "")
	sc.TimelineURL = config.GetEnv("SCRAPER_TIMELINE_URL", sc.TimelineURL)

	return Config{
		Port:    config.GetEnv("PORT", DefaultPort),
		LogFile: config.GetEnv("LOG_FILE", DefaultLogFile),
		Loop:    config.GetEnvBool("RUN_LOOP", false),
		LLM:     llm.LoadConfig(),
		X: poster.Credentials{
			APIKey:            config.GetEnv("TWITTER_API_KEY", ""),
			APISecret:         config.GetEnv("TWITTER_API_SECRET", ""),
			AccessToken:       config.GetEnv("TWITTER_ACCESS_TOKEN", ""),
			AccessTokenSecret: config.GetEnv("TWITTER_ACCESS_TOKEN_SECRET", ""),
		},
		XBaseURL: config.GetEnv("X_API_URL", ""),
		Scraper:  sc,
		State: state.Config{
			Backend:  config.GetEnv("STATE_BACKEND", "file"),
			Path:     config.GetEnv("STATE_FILE", state.DefaultPath),
			RedisKey: config.GetEnv("STATE_REDIS_KEY", state.DefaultRedisKey),
			Redis:    redis.LoadConfig(),
		},
		Orchestrator: orch,
	}
}

// Apply overlays keys set in v (YAML file or bound flags) on top of c.
func (c *Config) Apply(v *viper.Viper) {
	if v == nil {
		return
	}
	p := &c.Orchestrator.Policy
	if v.IsSet("policy.max_daily_standalone") {
		p.MaxDailyStandalone = v.GetInt("policy.max_daily_standalone")
	}
	if v.IsSet("policy.thread_interval_days") {
		p.ThreadIntervalDays = v.GetInt("policy.thread_interval_days")
	}
	if v.IsSet("policy.engage_interval") {
		p.MinEngageInterval = v.GetDuration("policy.engage_interval")
	}
	if v.IsSet("policy.freshness_window") {
		p.FreshnessWindow = v.GetDuration("policy.freshness_window")
	}
	if v.IsSet("policy.standalone_spacing") {
		p.StandaloneMinSpacing = v.GetDuration("policy.standalone_spacing")
	}
	if v.IsSet("policy.thread_hour") {
		p.ThreadHour = v.GetInt("policy.thread_hour")
	}

	o := &c.Orchestrator
	if v.IsSet("engagement.replies") {
		o.Replies = v.GetInt("engagement.replies")
	}
	if v.IsSet("engagement.quotes") {
		o.Quotes = v.GetInt("engagement.quotes")
	}
	if v.IsSet("engagement.scrape_limit") {
		o.ScrapeLimit = v.GetInt("engagement.scrape_limit")
	}
	if v.IsSet("schedule.interval") {
		o.TickInterval = v.GetDuration("schedule.interval")
	}
	if v.IsSet("schedule.loop") {
		c.Loop = v.GetBool("schedule.loop")
	}
	if topics := v.GetStringSlice("topics.standalone"); len(topics) > 0 {
		o.Topics = topics
	}
	if topics := v.GetStringSlice("topics.thread"); len(topics) > 0 {
		o.ThreadTopics = topics
	}
	if v.IsSet("state.backend") {
		c.State.Backend = v.GetString("state.backend")
	}
	if v.IsSet("state.path") {
		c.State.Path = v.GetString("state.path")
	}
	if v.IsSet("llm.model") {
		c.LLM.Model = v.GetString("llm.model")
	}
	if v.IsSet("port") {
		c.Port = v.GetString("port")
	}
}

// Validate checks the credentials every posting run needs.
func (c Config) Validate() error {
	missing := append(c.missingX(), c.missingLLM()...)
	if len(missing) > 0 {
		return &models.FatalConfigError{Missing: missing}
	}

	switch strings.ToLower(c.State.Backend) {
	case "", "file", "redis":
	default:
		return &models.FatalConfigError{Reason: "unknown STATE_BACKEND " + c.State.Backend}
	}
	if p := c.Orchestrator.Policy; p.MaxDailyStandalone < 0 || p.ThreadIntervalDays < 0 || p.ThreadHour > 23 {
		return &models.FatalConfigError{Reason: "policy values out of range"}
	}
	return nil
}

// ValidateX checks only the X API credentials.
func (c Config) ValidateX() error {
	if missing := c.missingX(); len(missing) > 0 {
		return &models.FatalConfigError{Missing: missing}
	}
	return nil
}

func (c Config) missingX() []string {
	var missing []string
	if c.X.APIKey == "" {
		missing = append(missing, "TWITTER_API_KEY")
	}
	if c.X.APISecret == "" {
		missing = append(missing, "TWITTER_API_SECRET")
	}
	if c.X.AccessToken == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN")
	}
	if c.X.AccessTokenSecret == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN_SECRET")
	}
	return missing
}

func (c Config) missingLLM() []string {
	if c.LLM.APIKey != "" {
		return nil
	}
	// A keyless OpenAI-compatible endpoint (local server) is allowed.
	if c.LLM.Provider == "openai" && c.LLM.APIURL != "" {
		return nil
	}
	if c.LLM.Provider == "gemini" {
		return []string{"GEMINI_API_KEY"}
	}
	return []string{"LLM_API_KEY"}
}

// HealthConfig lists values the configuration health check requires to be non-empty.
func (c Config) HealthConfig() map[string]string {
	return map[string]string{
		"TWITTER_API_KEY":      c.X.APIKey,
		"TWITTER_ACCESS_TOKEN": c.X.AccessToken,
		"LLM_PROVIDER":         c.LLM.Provider,
		"LLM_MODEL":            c.LLM.Model,
		"STATE_BACKEND":        c.State.Backend,
	}
}
