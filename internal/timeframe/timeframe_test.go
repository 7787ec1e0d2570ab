package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glance/internal/timeframe"
)

var noon = time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	t.Run("today spans midnight to now", func(t *testing.T) {
		tf, err := timeframe.Parse("today", noon)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), tf.From)
		assert.Equal(t, noon, tf.To)
	})

	t.Run("yesterday is one whole day", func(t *testing.T) {
		tf, err := timeframe.Parse("yesterday", noon)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), tf.From)
		assert.True(t, tf.To.Before(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, 1, tf.Days())
	})

	t.Run("last 7 days is the default", func(t *testing.T) {
		tf, err := timeframe.Parse("", noon)
		require.NoError(t, err)
		assert.Equal(t, timeframe.RangeLabelLast7Days, tf.Label)
		assert.Equal(t, 7, tf.Days())
	})

	t.Run("last 30 days spans 30 buckets", func(t *testing.T) {
		tf, err := timeframe.Parse("last_30_days", noon)
		require.NoError(t, err)
		assert.Equal(t, 30, tf.Days())
	})

	t.Run("unknown labels are rejected", func(t *testing.T) {
		_, err := timeframe.Parse("fortnight", noon)
		assert.Error(t, err)
	})
}

func TestPrevious(t *testing.T) {
	tf, err := timeframe.Parse("last_7_days", noon)
	require.NoError(t, err)

	prev := tf.Previous()
	assert.Equal(t, tf.To.Sub(tf.From), prev.To.Sub(prev.From), "equal length")
	assert.True(t, prev.To.Before(tf.From), "strictly before the current window")
}

func TestDayBuckets(t *testing.T) {
	tf := timeframe.Custom(
		time.Date(2025, 6, 13, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 15, 20, 0, 0, 0, time.UTC),
	)

	buckets := tf.DayBuckets()
	require.Len(t, buckets, 3)
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), buckets[0], "oldest first")
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), buckets[2])
}
