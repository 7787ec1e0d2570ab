package analytics

import (
	"math"
	"sort"
)

// Breakdown is one ranked entry of a report section.
type Breakdown struct {
	Key        string  `json:"key"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// counter is a frequency map that remembers first-seen order so that
// equal counts rank by arrival.
type counter struct {
	keys   []string
	counts map[string]int64
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int64)}
}

// Add increments key by n. Empty keys are ignored; callers substitute
// their fallback bucket before calling.
func (c *counter) Add(key string, n int64) {
	if key == "" {
		return
	}
	if _, seen := c.counts[key]; !seen {
		c.keys = append(c.keys, key)
	}
	c.counts[key] += n
}

// Total sums all counts.
func (c *counter) Total() int64 {
	var total int64
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Breakdowns ranks entries descending by count, ties broken by first-seen
// order. Percentages are computed against denominator and rounded to one
// decimal; a zero denominator yields zero percentages. A limit <= 0 means
// no truncation.
func (c *counter) Breakdowns(denominator int64, limit int) []Breakdown {
	ranked := make([]Breakdown, 0, len(c.keys))
	for _, key := range c.keys {
		ranked = append(ranked, Breakdown{Key: key, Count: c.counts[key]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	for i := range ranked {
		if denominator > 0 {
			pct := float64(ranked[i].Count) / float64(denominator) * 100
			ranked[i].Percentage = math.Round(pct*10) / 10
		}
	}
	return ranked
}
