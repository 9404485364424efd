package bumper

import (
	"sync"
	"time"

	"forumbump/internal/components/assert"
	"forumbump/internal/components/chrono"
	"forumbump/internal/scrapers/forum"
)

type Totals struct {
	Posts int64 `json:"posts"`
	Bumps int64 `json:"bumps"`
}

// Snapshot is a copy of the statistics at one point in time.
type Snapshot struct {
	Start time.Time
	// LastBump is zero until the first post.
	LastBump    time.Time
	LastRequest *forum.Exchange
	Totals      Totals
}

// Stats are the run statistics, written by the scheduler and the forum
// transport and read through Snapshot.
type Stats struct {
	time chrono.TimeAPI

	mu          sync.RWMutex
	start       time.Time
	lastBump    time.Time
	lastRequest *forum.Exchange
	totals      Totals
}

func NewStats(clock chrono.TimeAPI) *Stats {
	assert.NotNil(clock)
	return &Stats{time: clock, start: clock.Now()}
}

// RecordResponse implements forum.ResponseRecorder.
func (s *Stats) RecordResponse(ex forum.Exchange) {
	s.mu.Lock()
	s.lastRequest = &ex
	s.mu.Unlock()
}

func (s *Stats) recordPost() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Posts++
	s.lastBump = s.time.Now()
	return s.totals.Posts
}

func (s *Stats) recordBump() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Bumps++
	return s.totals.Bumps
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{
		Start:    s.start,
		LastBump: s.lastBump,
		Totals:   s.totals,
	}
	if s.lastRequest != nil {
		last := *s.lastRequest
		out.LastRequest = &last
	}
	return out
}

const timeLayout = "2006-01-02 15:04:05"

// AsDict is the json friendly form of the statistics shown on the dashboard.
func (s *Stats) AsDict() map[string]any {
	snapshot := s.Snapshot()

	var lastBump any
	if !snapshot.LastBump.IsZero() {
		lastBump = snapshot.LastBump.Format(timeLayout)
	}
	var lastRequest any
	if snapshot.LastRequest != nil {
		lastRequest = map[string]any{
			"method": snapshot.LastRequest.Method,
			"url":    snapshot.LastRequest.Url,
			"status": snapshot.LastRequest.Status,
			"body":   snapshot.LastRequest.Body,
		}
	}

	return map[string]any{
		"start":        snapshot.Start.Format(timeLayout),
		"last_bump":    lastBump,
		"last_request": lastRequest,
		"totals": map[string]any{
			"posts": snapshot.Totals.Posts,
			"bumps": snapshot.Totals.Bumps,
		},
	}
}
