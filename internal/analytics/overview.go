package analytics

import (
	"context"
	"fmt"

	"glance/internal/pkg/async"
	"glance/internal/timeframe"
)

// Changes compares the window's headline figures with the prior
// equal-length period.
type Changes struct {
	PageViews      int `json:"pageViews"`
	Visitors       int `json:"visitors"`
	EngagementRate int `json:"engagementRate"`
	BounceRate     int `json:"bounceRate"`
}

// Overview is the complete dashboard payload for one window.
type Overview struct {
	Metrics        Metrics `json:"metrics"`
	Changes        Changes `json:"changes"`
	Reports        Reports `json:"reports"`
	Trends         Trends  `json:"trends"`
	ActiveVisitors int64   `json:"activeVisitors"`
}

// Overview assembles metrics, comparisons, reports, trends and the live
// visitor count in parallel. Section names double as result keys.
func (e *Engine) Overview(ctx context.Context, websiteID uint, tf timeframe.TimeFrame, limit int) (*Overview, error) {
	tasks := []async.Task{
		{Name: "metrics", Execute: func() (interface{}, error) {
			return e.Metrics(websiteID, tf)
		}},
		{Name: "previous", Execute: func() (interface{}, error) {
			return e.Metrics(websiteID, tf.Previous())
		}},
		{Name: "reports", Execute: func() (interface{}, error) {
			return e.Reports(websiteID, tf, limit)
		}},
		{Name: "trends", Execute: func() (interface{}, error) {
			return e.Trends(websiteID, tf)
		}},
		{Name: "active", Execute: func() (interface{}, error) {
			return e.ActiveVisitors(websiteID)
		}},
	}

	results := async.NewPool(len(tasks)).Execute(ctx, tasks)
	for _, name := range []string{"metrics", "previous", "reports", "trends", "active"} {
		result, ok := results[name]
		if !ok {
			return nil, fmt.Errorf("overview section %s was not computed: %w", name, ctx.Err())
		}
		if result.Err != nil {
			return nil, fmt.Errorf("overview section %s failed: %w", name, result.Err)
		}
	}

	metrics := results["metrics"].Data.(Metrics)
	previous := results["previous"].Data.(Metrics)

	return &Overview{
		Metrics: metrics,
		Changes: Changes{
			PageViews:      PercentChange(metrics.PageViews, previous.PageViews),
			Visitors:       PercentChange(metrics.Visitors, previous.Visitors),
			EngagementRate: PercentChange(int64(metrics.EngagementRate), int64(previous.EngagementRate)),
			BounceRate:     PercentChange(int64(metrics.BounceRate), int64(previous.BounceRate)),
		},
		Reports:        results["reports"].Data.(Reports),
		Trends:         results["trends"].Data.(Trends),
		ActiveVisitors: results["active"].Data.(int64),
	}, nil
}
