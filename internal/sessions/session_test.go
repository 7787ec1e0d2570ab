package sessions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glance/internal/cache"
	"glance/internal/sessions"
	"glance/internal/testsupport"
)

func TestEvaluate(t *testing.T) {
	now := time.Now()
	timeout := 30 * time.Minute

	t.Run("zero last activity is expired", func(t *testing.T) {
		assert.Equal(t, sessions.StateExpired, sessions.Evaluate(now, time.Time{}, timeout))
	})

	t.Run("recent activity is active", func(t *testing.T) {
		assert.Equal(t, sessions.StateActive, sessions.Evaluate(now, now.Add(-time.Minute), timeout))
		assert.Equal(t, sessions.StateActive, sessions.Evaluate(now, now.Add(-29*time.Minute), timeout))
	})

	t.Run("idle past the timeout is expired", func(t *testing.T) {
		assert.Equal(t, sessions.StateExpired, sessions.Evaluate(now, now.Add(-31*time.Minute), timeout))
	})
}

func TestResolve(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "sessions.test")

	newResolver := func() *sessions.Resolver {
		return sessions.NewResolver(cache.NewTTLCache(30*time.Minute), 30*time.Minute)
	}

	data := sessions.NewSessionData{
		Browser:      "chrome",
		OS:           "MacOS",
		Device:       "desktop",
		Path:         "/landing",
		Referrer:     "google.com",
		IsNewVisitor: true,
	}

	t.Run("first beacon opens a session", func(t *testing.T) {
		resolver := newResolver()

		res, err := resolver.Resolve(db, "hash-a", 1, website.ID, data)
		require.NoError(t, err)
		assert.True(t, res.IsNewSession)

		var stored sessions.Session
		require.NoError(t, db.First(&stored, res.SessionID).Error)
		assert.Equal(t, "/landing", stored.EntryPath)
		assert.Equal(t, "/landing", stored.ExitPath)
		assert.True(t, stored.IsNewVisitor)
	})

	t.Run("active window is reused and exit path follows", func(t *testing.T) {
		resolver := newResolver()

		first, err := resolver.Resolve(db, "hash-b", 1, website.ID, data)
		require.NoError(t, err)

		next := data
		next.Path = "/pricing"
		second, err := resolver.Resolve(db, "hash-b", 1, website.ID, next)
		require.NoError(t, err)
		assert.False(t, second.IsNewSession)
		assert.Equal(t, first.SessionID, second.SessionID)

		var stored sessions.Session
		require.NoError(t, db.First(&stored, first.SessionID).Error)
		assert.Equal(t, "/landing", stored.EntryPath, "entry path is frozen")
		assert.Equal(t, "/pricing", stored.ExitPath)
	})

	t.Run("idle timeout opens a new session", func(t *testing.T) {
		resolver := newResolver()
		current := time.Now()
		resolver.SetClock(func() time.Time { return current })

		first, err := resolver.Resolve(db, "hash-c", 1, website.ID, data)
		require.NoError(t, err)

		current = current.Add(31 * time.Minute)
		second, err := resolver.Resolve(db, "hash-c", 1, website.ID, data)
		require.NoError(t, err)
		assert.True(t, second.IsNewSession)
		assert.NotEqual(t, first.SessionID, second.SessionID)
	})

	t.Run("activity keeps the window open past the timeout", func(t *testing.T) {
		resolver := newResolver()
		current := time.Now()
		resolver.SetClock(func() time.Time { return current })

		first, err := resolver.Resolve(db, "hash-d", 1, website.ID, data)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			current = current.Add(20 * time.Minute)
			res, err := resolver.Resolve(db, "hash-d", 1, website.ID, data)
			require.NoError(t, err)
			assert.False(t, res.IsNewSession)
			assert.Equal(t, first.SessionID, res.SessionID)
		}
	})

	t.Run("dangling affinity entry falls back to a fresh session", func(t *testing.T) {
		resolver := newResolver()

		first, err := resolver.Resolve(db, "hash-e", 1, website.ID, data)
		require.NoError(t, err)

		require.NoError(t, db.Delete(&sessions.Session{}, first.SessionID).Error)

		second, err := resolver.Resolve(db, "hash-e", 1, website.ID, data)
		require.NoError(t, err)
		assert.True(t, second.IsNewSession)
		assert.NotEqual(t, first.SessionID, second.SessionID)
	})
}

func TestUpdateExitPath(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "exitpath.test")
	session := testsupport.CreateTestSession(t, db, website.ID, 1, time.Now())

	require.NoError(t, sessions.UpdateExitPath(db, session.ID, "/checkout"))

	var stored sessions.Session
	require.NoError(t, db.First(&stored, session.ID).Error)
	assert.Equal(t, "/checkout", stored.ExitPath)

	t.Run("empty path is a no-op", func(t *testing.T) {
		require.NoError(t, sessions.UpdateExitPath(db, session.ID, ""))

		var unchanged sessions.Session
		require.NoError(t, db.First(&unchanged, session.ID).Error)
		assert.Equal(t, "/checkout", unchanged.ExitPath)
	})
}

func TestCountActive(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "active.test")

	testsupport.CreateTestSession(t, db, website.ID, 1, time.Now())
	testsupport.CreateTestSession(t, db, website.ID, 2, time.Now().Add(-10*time.Minute))

	count, err := sessions.CountActive(db, website.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
