package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"glance/internal/cache"
	"glance/internal/events"
	"glance/internal/models"
	"glance/internal/sessions"
	"glance/internal/testsupport"
	"glance/internal/timeframe"
)

func newTestEngine(db *gorm.DB) *Engine {
	return NewEngine(db, testsupport.GetLogger(), cache.NewTTLCache(2*time.Minute))
}

func sessionRecord() sessions.Session {
	return sessions.Session{EntryPath: "/entry", ExitPath: "/exit"}
}

func TestCounterBreakdowns(t *testing.T) {
	t.Run("sorts descending with first-seen tie break", func(t *testing.T) {
		c := newCounter()
		c.Add("/a", 1)
		c.Add("/b", 3)
		c.Add("/c", 1)
		c.Add("/a", 1)

		ranked := c.Breakdowns(c.Total(), 0)
		require.Len(t, ranked, 3)
		assert.Equal(t, "/b", ranked[0].Key)
		assert.Equal(t, "/a", ranked[1].Key, "equal counts rank by arrival")
		assert.Equal(t, "/c", ranked[2].Key)
	})

	t.Run("percentages use the given denominator", func(t *testing.T) {
		c := newCounter()
		c.Add("x", 1)
		c.Add("y", 3)

		ranked := c.Breakdowns(4, 0)
		assert.Equal(t, 75.0, ranked[0].Percentage)
		assert.Equal(t, 25.0, ranked[1].Percentage)

		var sum float64
		for _, b := range ranked {
			sum += b.Percentage
		}
		assert.LessOrEqual(t, sum, 100.5)
	})

	t.Run("zero denominator yields zero percentages", func(t *testing.T) {
		c := newCounter()
		c.Add("x", 2)
		assert.Zero(t, c.Breakdowns(0, 0)[0].Percentage)
	})

	t.Run("limit truncates after ranking", func(t *testing.T) {
		c := newCounter()
		c.Add("low", 1)
		c.Add("high", 9)
		c.Add("mid", 5)

		ranked := c.Breakdowns(15, 2)
		require.Len(t, ranked, 2)
		assert.Equal(t, "high", ranked[0].Key)
		assert.Equal(t, "mid", ranked[1].Key)
	})
}

func TestPercentChange(t *testing.T) {
	cases := []struct {
		name     string
		current  int64
		previous int64
		want     int
	}{
		{"growth", 150, 100, 50},
		{"decline", 50, 100, -50},
		{"flat", 100, 100, 0},
		{"from zero to something", 5, 0, 100},
		{"zero to zero", 0, 0, 0},
		{"to zero", 0, 80, -100},
		{"rounds to nearest", 101, 3, 3267},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PercentChange(tc.current, tc.previous))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", formatDuration(0))
	assert.Equal(t, "00:45", formatDuration(45))
	assert.Equal(t, "01:15", formatDuration(75))
	assert.Equal(t, "61:05", formatDuration(3665))
	assert.Equal(t, "00:00", formatDuration(-3))
}

func TestFoldSession(t *testing.T) {
	base := time.Now().UTC()

	pv := func(path string, offset time.Duration) events.Event {
		return events.Event{Type: events.EventTypePageView, Path: path, CreatedAt: base.Add(offset)}
	}
	exit := func(duration float64, offset time.Duration) events.Event {
		return events.Event{
			Type:      events.EventTypeCustom,
			Name:      events.EventNameExit,
			Data:      models.FromMap(map[string]interface{}{"duration": duration}),
			CreatedAt: base.Add(offset),
		}
	}

	t.Run("single counted event is a bounce", func(t *testing.T) {
		stats := foldSession(sessionRecord(), []events.Event{pv("/only", 0)})
		assert.True(t, stats.bounced)
		assert.False(t, stats.engaged)
	})

	t.Run("two counted events engage regardless of order", func(t *testing.T) {
		stats := foldSession(sessionRecord(), []events.Event{pv("/b", time.Second), pv("/a", 0)})
		assert.True(t, stats.engaged)
		assert.False(t, stats.bounced)
	})

	t.Run("exit event does not count toward bounce", func(t *testing.T) {
		stats := foldSession(sessionRecord(), []events.Event{pv("/only", 0), exit(3, time.Second)})
		assert.True(t, stats.bounced)
		assert.False(t, stats.engaged)
	})

	t.Run("long exit duration engages a single-event session", func(t *testing.T) {
		stats := foldSession(sessionRecord(), []events.Event{pv("/only", 0), exit(15, time.Second)})
		assert.True(t, stats.engaged)
		assert.True(t, stats.bounced)
	})

	t.Run("entry and exit come from the event paths", func(t *testing.T) {
		stats := foldSession(sessionRecord(), []events.Event{pv("/first", 0), pv("/last", time.Second)})
		assert.Equal(t, "/first", stats.entryPath)
		assert.Equal(t, "/last", stats.exitPath)
	})

	t.Run("no events preserve the session paths", func(t *testing.T) {
		stats := foldSession(sessionRecord(), nil)
		assert.Equal(t, "/entry", stats.entryPath)
		assert.Equal(t, "/exit", stats.exitPath)
	})
}

func TestMetrics(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "metrics.test")
	engine := newTestEngine(db)

	now := time.Now().UTC()
	tf := timeframe.Custom(now.Add(-time.Hour), now.Add(time.Hour))

	// 3 bounced sessions (one page view each), 7 engaged (two each).
	for i := 0; i < 10; i++ {
		session := testsupport.CreateTestSession(t, db, website.ID, uint(i+1), now)
		if i < 4 {
			require.NoError(t, db.Model(session).Update("is_new_visitor", true).Error)
		} else {
			require.NoError(t, db.Model(session).Update("is_new_visitor", false).Error)
		}
		testsupport.CreateTestEvent(t, db, website.ID, session.ID, events.EventTypePageView, "/home", "", now)
		if i >= 3 {
			testsupport.CreateTestEvent(t, db, website.ID, session.ID, events.EventTypePageView, "/docs", "", now.Add(time.Minute))
		}
	}

	metrics, err := engine.Metrics(website.ID, tf)
	require.NoError(t, err)

	assert.Equal(t, int64(17), metrics.PageViews)
	assert.Equal(t, int64(10), metrics.Visitors)
	assert.Equal(t, int64(4), metrics.NewVisitors)
	assert.Equal(t, int64(6), metrics.ReturningVisitors)
	assert.Equal(t, 30, metrics.BounceRate)
	assert.Equal(t, 70, metrics.EngagementRate)

	t.Run("empty window degrades to defaults", func(t *testing.T) {
		empty := timeframe.Custom(now.Add(-48*time.Hour), now.Add(-47*time.Hour))
		metrics, err := engine.Metrics(website.ID, empty)
		require.NoError(t, err)
		assert.Zero(t, metrics.Visitors)
		assert.Zero(t, metrics.BounceRate)
		assert.Zero(t, metrics.EngagementRate)
		assert.Equal(t, "00:00", metrics.AvgSessionDuration)
	})
}

func TestAvgSessionDuration(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "duration.test")
	engine := newTestEngine(db)

	now := time.Now().UTC()
	tf := timeframe.Custom(now.Add(-time.Hour), now.Add(time.Hour))

	short := testsupport.CreateTestSession(t, db, website.ID, 1, now)
	require.NoError(t, db.Model(short).Update("updated_at", now.Add(30*time.Second)).Error)
	long := testsupport.CreateTestSession(t, db, website.ID, 2, now)
	require.NoError(t, db.Model(long).Update("updated_at", now.Add(150*time.Second)).Error)
	// Zero-duration sessions are excluded from the mean.
	testsupport.CreateTestSession(t, db, website.ID, 3, now)

	metrics, err := engine.Metrics(website.ID, tf)
	require.NoError(t, err)
	assert.Equal(t, int64(90), metrics.AvgSessionSeconds)
	assert.Equal(t, "01:30", metrics.AvgSessionDuration)
}

func TestReports(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "reports.test")
	engine := newTestEngine(db)

	now := time.Now().UTC()
	tf := timeframe.Custom(now.Add(-time.Hour), now.Add(time.Hour))

	makeSession := func(visitorID uint, referrer, country, state, device string) uint {
		session := testsupport.CreateTestSession(t, db, website.ID, visitorID, now)
		require.NoError(t, db.Model(session).Updates(map[string]interface{}{
			"referrer": referrer,
			"country":  country,
			"state":    state,
			"device":   device,
		}).Error)
		return session.ID
	}

	s1 := makeSession(1, "google.com", "us", "California", "desktop")
	s2 := makeSession(2, "google.com", "us", "California", "mobile")
	s3 := makeSession(3, "", "", "", "desktop")

	testsupport.CreateTestEvent(t, db, website.ID, s1, events.EventTypePageView, "/home", "", now)
	testsupport.CreateTestEvent(t, db, website.ID, s1, events.EventTypePageView, "/docs", "", now.Add(time.Second))
	testsupport.CreateTestEvent(t, db, website.ID, s2, events.EventTypePageView, "/home", "", now)
	testsupport.CreateTestEvent(t, db, website.ID, s3, events.EventTypeCustom, "/home", "signup", now)

	require.NoError(t, events.RecordError(db, website.ID, events.WireError{Message: "boom", Count: 3}))

	reports, err := engine.Reports(website.ID, tf, 10)
	require.NoError(t, err)

	require.NotEmpty(t, reports.Pages)
	assert.Equal(t, "/home", reports.Pages[0].Key)
	assert.Equal(t, int64(2), reports.Pages[0].Count)

	require.Len(t, reports.Referrers, 2)
	assert.Equal(t, "Google", reports.Referrers[0].Key, "friendly names applied")
	assert.Equal(t, "Direct", reports.Referrers[1].Key, "empty referrer folds into Direct")

	require.Len(t, reports.Countries, 2)
	assert.Equal(t, "United States", reports.Countries[0].Key)
	assert.Equal(t, "Unknown", reports.Countries[1].Key)

	require.NotEmpty(t, reports.Regions)
	assert.Equal(t, "California, United States", reports.Regions[0].Key)

	require.Len(t, reports.CustomEvents, 1)
	assert.Equal(t, "signup", reports.CustomEvents[0].Key)
	assert.Equal(t, 100.0, reports.CustomEvents[0].Percentage)

	require.Len(t, reports.Errors, 1)
	assert.Equal(t, "boom", reports.Errors[0].Key)
	assert.Equal(t, int64(3), reports.Errors[0].Count, "errors weighted by stored count")

	require.Len(t, reports.Devices, 2)
	assert.Equal(t, "desktop", reports.Devices[0].Key)
}

func TestTrends(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "trends.test")
	engine := newTestEngine(db)

	day1 := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	day3 := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	tf := timeframe.Custom(day1.Add(-10*time.Hour), day3.Add(10*time.Hour))

	s1 := testsupport.CreateTestSession(t, db, website.ID, 1, day1)
	testsupport.CreateTestEvent(t, db, website.ID, s1.ID, events.EventTypePageView, "/a", "", day1)
	s3 := testsupport.CreateTestSession(t, db, website.ID, 2, day3)
	testsupport.CreateTestEvent(t, db, website.ID, s3.ID, events.EventTypePageView, "/a", "", day3)
	testsupport.CreateTestEvent(t, db, website.ID, s3.ID, events.EventTypePageView, "/b", "", day3.Add(time.Minute))

	trends, err := engine.Trends(website.ID, tf)
	require.NoError(t, err)

	require.Len(t, trends.Days, 3)
	assert.Equal(t, "2025-06-10", trends.Days[0], "oldest first")
	assert.Equal(t, []int64{1, 0, 2}, trends.PageViews, "middle day zero-filled")
	assert.Equal(t, []int64{1, 0, 1}, trends.Sessions)
	assert.Equal(t, 100, trends.BounceRate[0])
	assert.Equal(t, 0, trends.BounceRate[1])
	assert.Equal(t, 100, trends.EngagementRate[2])
}

func TestOverview(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "overview.test")
	engine := newTestEngine(db)

	now := time.Now().UTC()
	tf := timeframe.Custom(now.Add(-time.Hour), now)

	session := testsupport.CreateTestSession(t, db, website.ID, 1, now.Add(-30*time.Minute))
	testsupport.CreateTestEvent(t, db, website.ID, session.ID, events.EventTypePageView, "/", "", now.Add(-30*time.Minute))

	overview, err := engine.Overview(context.Background(), website.ID, tf, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(1), overview.Metrics.Visitors)
	assert.Equal(t, 100, overview.Changes.Visitors, "empty prior window reads as full growth")
	assert.NotNil(t, overview.Reports.Pages)
	assert.Len(t, overview.Trends.Days, tf.Days())
	assert.GreaterOrEqual(t, overview.ActiveVisitors, int64(0))
}
