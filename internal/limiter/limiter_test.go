package limiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"glance/internal/limiter"
)

func TestAllow(t *testing.T) {
	t.Run("admits exactly max requests per window", func(t *testing.T) {
		l := limiter.New(100, time.Minute)

		admitted := 0
		for i := 0; i < 150; i++ {
			if l.Allow("203.0.113.9") {
				admitted++
			}
		}
		assert.Equal(t, 100, admitted)
	})

	t.Run("tracks each ip independently", func(t *testing.T) {
		l := limiter.New(1, time.Minute)

		assert.True(t, l.Allow("203.0.113.1"))
		assert.False(t, l.Allow("203.0.113.1"))
		assert.True(t, l.Allow("203.0.113.2"))
	})

	t.Run("window expiry resets the count", func(t *testing.T) {
		l := limiter.New(2, time.Minute)
		current := time.Now()
		l.SetClock(func() time.Time { return current })

		assert.True(t, l.Allow("203.0.113.1"))
		assert.True(t, l.Allow("203.0.113.1"))
		assert.False(t, l.Allow("203.0.113.1"))

		current = current.Add(time.Minute)
		assert.True(t, l.Allow("203.0.113.1"))
	})
}

func TestSweep(t *testing.T) {
	l := limiter.New(10, time.Minute)
	current := time.Now()
	l.SetClock(func() time.Time { return current })

	l.Allow("203.0.113.1")
	current = current.Add(90 * time.Second)
	l.Allow("203.0.113.2")

	// First window is idle for 2x the window length, second is not.
	evicted := l.Sweep(current.Add(30 * time.Second))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, l.Len())
}
