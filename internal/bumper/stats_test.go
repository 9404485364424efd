package bumper

import (
	"testing"
	"time"

	"forumbump/internal/components/chrono/chronotest"
	"forumbump/internal/scrapers/forum"

	"github.com/stretchr/testify/require"
)

func TestStatsAsDict(t *testing.T) {
	clock := chronotest.NewClock(time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC))
	stats := NewStats(clock)

	require.Equal(t, map[string]any{
		"start":        "2024-03-04 05:06:07",
		"last_bump":    nil,
		"last_request": nil,
		"totals":       map[string]any{"posts": int64(0), "bumps": int64(0)},
	}, stats.AsDict())

	clock.Advance(time.Minute)
	stats.recordPost()
	stats.recordBump()
	stats.RecordResponse(forum.Exchange{Method: "POST", Url: "https://ogusers.com/newreply.php", Status: 200, Body: "ok"})

	require.Equal(t, map[string]any{
		"start":     "2024-03-04 05:06:07",
		"last_bump": "2024-03-04 05:07:07",
		"last_request": map[string]any{
			"method": "POST",
			"url":    "https://ogusers.com/newreply.php",
			"status": 200,
			"body":   "ok",
		},
		"totals": map[string]any{"posts": int64(1), "bumps": int64(1)},
	}, stats.AsDict())
}

func TestStatsSnapshotIsCopy(t *testing.T) {
	stats := NewStats(chronotest.NewClock(time.Unix(0, 0)))
	stats.RecordResponse(forum.Exchange{Status: 200, Body: "first"})

	snapshot := stats.Snapshot()
	snapshot.LastRequest.Body = "changed"
	require.Equal(t, "first", stats.Snapshot().LastRequest.Body)
}
