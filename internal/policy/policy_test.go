package policy

import (
	"testing"
	"time"

	"cadence/internal/models"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.Local)
}

func TestResetDaily_Idempotent(t *testing.T) {
	for _, stale := range []string{"", "2026-10-18", "1999-01-01", "garbage"} {
		s := &models.BotState{DailyTweetCount: 4, LastTweetDate: stale}
		now := at(19, 10, 0)

		if got := DailyTweetCount(s, now); got != 0 {
			t.Fatalf("date %q: DailyTweetCount = %d, want 0", stale, got)
		}
		if !ResetDaily(s, now) {
			t.Fatalf("date %q: first ResetDaily reported no change", stale)
		}
		if s.DailyTweetCount != 0 {
			t.Fatalf("date %q: count after reset = %d", stale, s.DailyTweetCount)
		}

		s.DailyTweetCount = 2
		if ResetDaily(s, now) {
			t.Fatalf("date %q: second reset on the same day changed state", stale)
		}
		if s.DailyTweetCount != 2 {
			t.Fatalf("date %q: count = %d, want 2", stale, s.DailyTweetCount)
		}
	}
}

func TestCanPostStandalone_Cap(t *testing.T) {
	p := Default()
	now := at(19, 12, 0)
	for count := 0; count <= 6; count++ {
		s := &models.BotState{DailyTweetCount: count, LastTweetDate: Date(now)}
		if got, want := p.CanPostStandalone(s, now), count < 4; got != want {
			t.Errorf("count=%d: CanPostStandalone = %v, want %v", count, got, want)
		}
	}

	s := &models.BotState{DailyTweetCount: 9, LastTweetDate: Date(at(18, 12, 0))}
	if !p.CanPostStandalone(s, now) {
		t.Error("stale date should behave as a new day")
	}
}

func TestCanPostStandalone_MinSpacing(t *testing.T) {
	p := Default()
	p.StandaloneMinSpacing = 2 * time.Hour
	now := at(19, 12, 0)

	tests := []struct {
		since time.Duration
		want  bool
	}{
		{time.Hour, false},
		{2 * time.Hour, true},
		{3 * time.Hour, true},
	}
	for _, tt := range tests {
		s := &models.BotState{DailyTweetCount: 1, LastTweetDate: Date(now), LastStandaloneTweetTime: now.Add(-tt.since)}
		if got := p.CanPostStandalone(s, now); got != tt.want {
			t.Errorf("last post %v ago: CanPostStandalone = %v, want %v", tt.since, got, tt.want)
		}
	}
}

func TestRecordStandalone(t *testing.T) {
	p := Default()
	now := at(19, 12, 0)
	s := &models.BotState{DailyTweetCount: 3, LastTweetDate: Date(now)}
	if !p.CanPostStandalone(s, now) {
		t.Fatal("expected room for one more post")
	}

	RecordStandalone(s, now)

	if s.DailyTweetCount != 4 {
		t.Errorf("DailyTweetCount = %d, want 4", s.DailyTweetCount)
	}
	if !s.LastStandaloneTweetTime.Equal(now) {
		t.Errorf("LastStandaloneTweetTime = %v, want %v", s.LastStandaloneTweetTime, now)
	}
	if p.CanPostStandalone(s, now.Add(time.Minute)) {
		t.Error("cap reached but another post was allowed")
	}
}

func TestCanPostThread_CalendarDays(t *testing.T) {
	p := Default()
	tests := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"never posted", time.Time{}, at(19, 10, 0), true},
		{"same day", at(19, 1, 0), at(19, 23, 0), false},
		{"one day later", at(18, 0, 1), at(19, 23, 59), false},
		{"two days late night to early morning", at(17, 23, 0), at(19, 0, 30), true},
		{"two days exactly", at(17, 10, 0), at(19, 10, 0), true},
		{"two days but under 48h", at(17, 23, 59), at(19, 0, 1), true},
		{"a week", at(10, 10, 0), at(19, 10, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.BotState{LastThreadTime: tt.last}
			if got := p.CanPostThread(s, tt.now); got != tt.want {
				t.Fatalf("CanPostThread = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanPostThread_HourWindow(t *testing.T) {
	p := Default()
	p.ThreadHour = 15
	s := &models.BotState{}

	tests := []struct {
		hour, minute int
		want         bool
	}{
		{15, 0, true},
		{14, 30, true},
		{15, 30, true},
		{14, 29, false},
		{16, 0, false},
	}
	for _, tt := range tests {
		if got := p.CanPostThread(s, at(19, tt.hour, tt.minute)); got != tt.want {
			t.Errorf("%02d:%02d: CanPostThread = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestCanEngage(t *testing.T) {
	p := Default()
	now := at(19, 10, 0)

	tests := []struct {
		name  string
		last  time.Time
		every time.Duration
		want  bool
	}{
		{"never engaged", time.Time{}, 0, true},
		{"30m ago", now.Add(-30 * time.Minute), 0, false},
		{"1h ago", now.Add(-time.Hour), 0, true},
		{"30m ago with 10m override", now.Add(-30 * time.Minute), 10 * time.Minute, true},
	}
	for _, tt := range tests {
		s := &models.BotState{LastEngagementTime: tt.last}
		var got bool
		if tt.every > 0 {
			got = p.CanEngageWithin(s, now, tt.every)
		} else {
			got = p.CanEngage(s, now)
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCanEngage_Hours(t *testing.T) {
	p := Default()
	p.EngageHours = []int{9, 10, 11, 12, 18, 21}

	if !p.CanEngage(&models.BotState{}, at(19, 18, 5)) {
		t.Error("18:05 is inside the engagement hours")
	}
	if p.CanEngage(&models.BotState{}, at(19, 14, 0)) {
		t.Error("14:00 is outside the engagement hours")
	}
}

func TestCalendarDaysBetween(t *testing.T) {
	tests := []struct {
		from, to time.Time
		want     int
	}{
		{at(19, 0, 0), at(19, 23, 59), 0},
		{at(18, 23, 59), at(19, 0, 0), 1},
		{at(17, 23, 0), at(19, 0, 30), 2},
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), time.Date(2026, 4, 1, 0, 0, 0, 0, time.Local), 31},
	}
	for _, tt := range tests {
		if got := CalendarDaysBetween(tt.from, tt.to); got != tt.want {
			t.Errorf("CalendarDaysBetween(%v, %v) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
}
