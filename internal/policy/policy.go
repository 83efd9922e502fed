// Package policy decides which actions are allowed at a given moment. All
// functions are pure and evaluate dates in now's location.
package policy

import (
	"time"

	"cadence/internal/models"
)

// Policy holds the quota parameters. Zero values of the optional knobs disable them.
type Policy struct {
	MaxDailyStandalone int
	ThreadIntervalDays int
	MinEngageInterval  time.Duration
	FreshnessWindow    time.Duration

	// StandaloneMinSpacing is the minimum gap between two standalone posts.
	StandaloneMinSpacing time.Duration
	// ThreadHour restricts threads to ThreadHour:00 +/- ThreadWindow. -1 disables.
	ThreadHour   int
	ThreadWindow time.Duration
	// EngageHours restricts engagement to the listed local hours. Empty allows any hour.
	EngageHours []int
}

// Default returns the product defaults.
func Default() Policy {
	return Policy{
		MaxDailyStandalone: 4,
		ThreadIntervalDays: 2,
		MinEngageInterval:  time.Hour,
		FreshnessWindow:    24 * time.Hour,
		ThreadHour:         -1,
		ThreadWindow:       30 * time.Minute,
	}
}

// Date returns t's local calendar date in models.DateLayout.
func Date(t time.Time) string {
	return t.Format(models.DateLayout)
}

// DailyTweetCount is the stored count, or 0 when the stored date is not today.
func DailyTweetCount(s *models.BotState, now time.Time) int {
	if s.LastTweetDate != Date(now) {
		return 0
	}
	return s.DailyTweetCount
}

// ResetDaily applies the day rollover to s. Calling it again on the same day is a no-op.
func ResetDaily(s *models.BotState, now time.Time) bool {
	today := Date(now)
	if s.LastTweetDate == today {
		return false
	}
	s.DailyTweetCount = 0
	s.LastTweetDate = today
	return true
}

// RecordStandalone books a successful standalone post.
func RecordStandalone(s *models.BotState, now time.Time) {
	ResetDaily(s, now)
	s.DailyTweetCount++
	s.LastStandaloneTweetTime = now
}

func (p Policy) CanPostStandalone(s *models.BotState, now time.Time) bool {
	if DailyTweetCount(s, now) >= p.MaxDailyStandalone {
		return false
	}
	if p.StandaloneMinSpacing > 0 && !s.LastStandaloneTweetTime.IsZero() &&
		now.Sub(s.LastStandaloneTweetTime) < p.StandaloneMinSpacing {
		return false
	}
	return true
}

func (p Policy) CanPostThread(s *models.BotState, now time.Time) bool {
	if !s.LastThreadTime.IsZero() && CalendarDaysBetween(s.LastThreadTime, now) < p.ThreadIntervalDays {
		return false
	}
	if p.ThreadHour >= 0 {
		target := time.Date(now.Year(), now.Month(), now.Day(), p.ThreadHour, 0, 0, 0, now.Location())
		if d := now.Sub(target); d < -p.ThreadWindow || d > p.ThreadWindow {
			return false
		}
	}
	return true
}

func (p Policy) CanEngage(s *models.BotState, now time.Time) bool {
	return p.CanEngageWithin(s, now, p.MinEngageInterval)
}

// CanEngageWithin checks engagement against an explicit minimum interval.
func (p Policy) CanEngageWithin(s *models.BotState, now time.Time, minInterval time.Duration) bool {
	if len(p.EngageHours) > 0 {
		allowed := false
		for _, h := range p.EngageHours {
			if h == now.Hour() {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if s.LastEngagementTime.IsZero() {
		return true
	}
	return now.Sub(s.LastEngagementTime) >= minInterval
}

// CalendarDaysBetween counts date boundaries crossed from a to b, in b's location.
func CalendarDaysBetween(a, b time.Time) int {
	a = a.In(b.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 12, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
