package models

import "time"

// DateLayout is the calendar-date form used for LastTweetDate.
const DateLayout = "2006-01-02"

// BotState is the persisted scheduling state. It is owned by the orchestrator.
type BotState struct {
	LastStandaloneTweetTime time.Time `json:"last_standalone_tweet_time"`
	LastThreadTime          time.Time `json:"last_thread_time"`
	LastEngagementTime      time.Time `json:"last_engagement_time"`
	DailyTweetCount         int       `json:"daily_tweet_count"`
	LastTweetDate           string    `json:"last_tweet_date"`

	// SeenOrder holds seen ids in insertion order; SeenItemIDs indexes it.
	SeenOrder   []string            `json:"seen_item_ids"`
	SeenItemIDs map[string]struct{} `json:"-"`

	RunCount  int       `json:"run_count"`
	LastRunAt time.Time `json:"last_run_at"`
}

// NewBotState returns the default state used when nothing is persisted.
func NewBotState() *BotState {
	return &BotState{SeenItemIDs: make(map[string]struct{})}
}

// Normalize rebuilds the seen index from SeenOrder, dropping blanks and duplicates.
func (s *BotState) Normalize() {
	if s.DailyTweetCount < 0 {
		s.DailyTweetCount = 0
	}
	idx := make(map[string]struct{}, len(s.SeenOrder))
	order := s.SeenOrder[:0]
	for _, id := range s.SeenOrder {
		if id == "" {
			continue
		}
		if _, dup := idx[id]; dup {
			continue
		}
		idx[id] = struct{}{}
		order = append(order, id)
	}
	s.SeenOrder = order
	s.SeenItemIDs = idx
}

func (s *BotState) HasSeen(id string) bool {
	_, ok := s.SeenItemIDs[id]
	return ok
}

// MarkSeen records id once, preserving first-seen order.
func (s *BotState) MarkSeen(id string) {
	if id == "" {
		return
	}
	if s.SeenItemIDs == nil {
		s.SeenItemIDs = make(map[string]struct{})
	}
	if _, ok := s.SeenItemIDs[id]; ok {
		return
	}
	s.SeenItemIDs[id] = struct{}{}
	s.SeenOrder = append(s.SeenOrder, id)
}

// CompactSeen evicts the oldest entries once the set exceeds maxSize, leaving
// at most keep of the most recent ids.
func (s *BotState) CompactSeen(maxSize, keep int) int {
	if len(s.SeenOrder) <= maxSize {
		return 0
	}
	if keep > maxSize {
		keep = maxSize
	}
	evict := len(s.SeenOrder) - keep
	for _, id := range s.SeenOrder[:evict] {
		delete(s.SeenItemIDs, id)
	}
	s.SeenOrder = append([]string(nil), s.SeenOrder[evict:]...)
	return evict
}

// Clone returns a deep copy.
func (s *BotState) Clone() *BotState {
	c := *s
	c.SeenOrder = append([]string(nil), s.SeenOrder...)
	c.SeenItemIDs = make(map[string]struct{}, len(s.SeenItemIDs))
	for id := range s.SeenItemIDs {
		c.SeenItemIDs[id] = struct{}{}
	}
	return &c
}

// Candidate is a scraped post considered for engagement.
type Candidate struct {
	ID           string   `json:"id"`
	AuthorHandle string   `json:"author_handle"`
	Text         string   `json:"text"`
	CreatedAt    string   `json:"created_at"`
	URL          string   `json:"url,omitempty"`
	Media        []string `json:"media,omitempty"`
}

// ActionType names what an action did.
type ActionType string

const (
	ActionReply      ActionType = "reply"
	ActionQuote      ActionType = "quote"
	ActionThread     ActionType = "thread"
	ActionStandalone ActionType = "standalone"
)

// Outcome is the result of one action.
type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ActionRecord describes one attempted action within a cycle.
type ActionRecord struct {
	Type      ActionType `json:"type"`
	TargetID  string     `json:"target_id,omitempty"`
	ResultID  string     `json:"result_id,omitempty"`
	ResultIDs []string   `json:"result_ids,omitempty"`
	Outcome   Outcome    `json:"outcome"`
	Err       error      `json:"-"`
	Reason    string     `json:"reason,omitempty"`
}

// CycleReport summarizes one orchestrator cycle.
type CycleReport struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Actions    []ActionRecord `json:"actions"`
	Evicted    int            `json:"evicted"`
	SaveErr    error          `json:"-"`
}

// Posted counts actions with the posted outcome.
func (r CycleReport) Posted() int {
	n := 0
	for _, a := range r.Actions {
		if a.Outcome == OutcomePosted {
			n++
		}
	}
	return n
}
