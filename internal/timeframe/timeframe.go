// Package timeframe parses reporting periods into concrete UTC windows.
package timeframe

import (
	"fmt"
	"time"
)

// RangeLabel represents the available time range options
type RangeLabel string

const (
	RangeLabelToday      RangeLabel = "today"
	RangeLabelYesterday  RangeLabel = "yesterday"
	RangeLabelLast7Days  RangeLabel = "last_7_days"
	RangeLabelLast30Days RangeLabel = "last_30_days"
	RangeLabelCustom     RangeLabel = "custom"
)

// TimeFrame represents a period between two points in time, inclusive.
type TimeFrame struct {
	From  time.Time
	To    time.Time
	Label RangeLabel
}

// Parse resolves a range label relative to now (interpreted in UTC).
// Unknown labels are an error; callers fall back to last_7_days.
func Parse(label string, now time.Time) (TimeFrame, error) {
	now = now.UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch RangeLabel(label) {
	case RangeLabelToday:
		return TimeFrame{From: startOfToday, To: now, Label: RangeLabelToday}, nil
	case RangeLabelYesterday:
		return TimeFrame{
			From:  startOfToday.AddDate(0, 0, -1),
			To:    startOfToday.Add(-time.Nanosecond),
			Label: RangeLabelYesterday,
		}, nil
	case RangeLabelLast7Days, "":
		return TimeFrame{
			From:  startOfToday.AddDate(0, 0, -6),
			To:    now,
			Label: RangeLabelLast7Days,
		}, nil
	case RangeLabelLast30Days:
		return TimeFrame{
			From:  startOfToday.AddDate(0, 0, -29),
			To:    now,
			Label: RangeLabelLast30Days,
		}, nil
	default:
		return TimeFrame{}, fmt.Errorf("unknown time range label: %q", label)
	}
}

// Custom builds an explicit window.
func Custom(from, to time.Time) TimeFrame {
	return TimeFrame{From: from.UTC(), To: to.UTC(), Label: RangeLabelCustom}
}

// Previous returns the equal-length period immediately before this one,
// used for period-over-period comparison.
func (tf TimeFrame) Previous() TimeFrame {
	length := tf.To.Sub(tf.From)
	return TimeFrame{
		From:  tf.From.Add(-length - time.Nanosecond),
		To:    tf.From.Add(-time.Nanosecond),
		Label: tf.Label,
	}
}

// Days returns the number of calendar days the window spans, minimum 1.
func (tf TimeFrame) Days() int {
	from := time.Date(tf.From.Year(), tf.From.Month(), tf.From.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(tf.To.Year(), tf.To.Month(), tf.To.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours()/24) + 1
}

// DayBuckets returns the UTC midnights of every day in the window, oldest
// first. Trend series align one value to each bucket.
func (tf TimeFrame) DayBuckets() []time.Time {
	days := tf.Days()
	buckets := make([]time.Time, 0, days)
	start := time.Date(tf.From.Year(), tf.From.Month(), tf.From.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		buckets = append(buckets, start.AddDate(0, 0, i))
	}
	return buckets
}
