// Package analytics computes dashboard metrics from raw session and event
// records: a streaming fold over the requested window produces scalar
// metrics, ranked breakdowns and per-day trend series.
package analytics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"glance/internal/cache"
	"glance/internal/events"
	"glance/internal/pkg/referrers"
	"glance/internal/sessions"
	"glance/internal/timeframe"
)

const (
	// rawPullTTL caches window-bounded record pulls.
	rawPullTTL = 2 * time.Minute
	// derivedTTL caches computed metrics, reports and trends.
	derivedTTL = 30 * time.Second
	// activeWindow bounds the live visitor count.
	activeWindow = 5 * time.Minute

	// engagementDurationSeconds marks a session engaged when any of its
	// events carries a longer duration payload.
	engagementDurationSeconds = 10

	// unknownBucket collects sessions with a missing dimension value.
	unknownBucket = "Unknown"
)

// Metrics are the scalar figures for one window.
type Metrics struct {
	PageViews          int64  `json:"pageViews"`
	Visitors           int64  `json:"visitors"`
	NewVisitors        int64  `json:"newVisitors"`
	ReturningVisitors  int64  `json:"returningVisitors"`
	EngagementRate     int    `json:"engagementRate"`
	BounceRate         int    `json:"bounceRate"`
	AvgSessionDuration string `json:"avgSessionDuration"`
	AvgSessionSeconds  int64  `json:"avgSessionSeconds"`
}

// Reports are the ranked breakdowns for one window.
type Reports struct {
	Pages        []Breakdown `json:"pages"`
	EntryPages   []Breakdown `json:"entryPages"`
	ExitPages    []Breakdown `json:"exitPages"`
	CustomEvents []Breakdown `json:"customEvents"`
	Referrers    []Breakdown `json:"referrers"`
	Devices      []Breakdown `json:"devices"`
	Browsers     []Breakdown `json:"browsers"`
	Languages    []Breakdown `json:"languages"`
	Countries    []Breakdown `json:"countries"`
	Regions      []Breakdown `json:"regions"`
	Errors       []Breakdown `json:"errors"`
}

// Trends are aligned per-day series, oldest day first.
type Trends struct {
	Days           []string `json:"days"`
	PageViews      []int64  `json:"pageViews"`
	Sessions       []int64  `json:"sessions"`
	EngagementRate []int    `json:"engagementRate"`
	BounceRate     []int    `json:"bounceRate"`
}

// Engine folds raw records into reports. Raw pulls and derived figures are
// cached in the report tier under website-id-prefixed keys so ingestion can
// invalidate them wholesale.
type Engine struct {
	db        *gorm.DB
	logger    *slog.Logger
	tier      *cache.TTLCache
	countries *gountries.Query
}

// NewEngine creates an engine backed by the report cache tier.
func NewEngine(db *gorm.DB, logger *slog.Logger, tier *cache.TTLCache) *Engine {
	return &Engine{
		db:        db,
		logger:    logger,
		tier:      tier,
		countries: gountries.New(),
	}
}

// windowKey builds a cache key from the window bounds at minute
// granularity, so near-simultaneous dashboard loads share one pull.
func windowKey(websiteID uint, kind string, tf timeframe.TimeFrame) string {
	return fmt.Sprintf("%d:%s:%d:%d",
		websiteID, kind,
		tf.From.Truncate(time.Minute).Unix(),
		tf.To.Truncate(time.Minute).Unix())
}

func (e *Engine) fetchSessions(websiteID uint, tf timeframe.TimeFrame) ([]sessions.Session, error) {
	key := windowKey(websiteID, "sessions", tf)
	if cached, ok := e.tier.Get(key); ok {
		return cached.([]sessions.Session), nil
	}

	var rows []sessions.Session
	err := e.db.Where("website_id = ? AND created_at BETWEEN ? AND ?", websiteID, tf.From, tf.To).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	e.tier.SetWithTTL(key, rows, rawPullTTL)
	return rows, nil
}

func (e *Engine) fetchEvents(websiteID uint, tf timeframe.TimeFrame) ([]events.Event, error) {
	key := windowKey(websiteID, "events", tf)
	if cached, ok := e.tier.Get(key); ok {
		return cached.([]events.Event), nil
	}

	var rows []events.Event
	err := e.db.Where("website_id = ? AND created_at BETWEEN ? AND ?", websiteID, tf.From, tf.To).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	e.tier.SetWithTTL(key, rows, rawPullTTL)
	return rows, nil
}

func (e *Engine) fetchErrors(websiteID uint, tf timeframe.TimeFrame) ([]events.JsError, error) {
	key := windowKey(websiteID, "jserrors", tf)
	if cached, ok := e.tier.Get(key); ok {
		return cached.([]events.JsError), nil
	}

	var rows []events.JsError
	err := e.db.Where("website_id = ? AND last_seen BETWEEN ? AND ?", websiteID, tf.From, tf.To).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch js errors: %w", err)
	}

	e.tier.SetWithTTL(key, rows, rawPullTTL)
	return rows, nil
}

// sessionStats is the per-session outcome of the fold.
type sessionStats struct {
	entryPath string
	exitPath  string
	engaged   bool
	bounced   bool
}

// foldSession walks one session's events in creation order. Synthetic exit
// events do not count toward bounce classification but their duration
// payload can mark the session engaged.
func foldSession(s sessions.Session, evs []events.Event) sessionStats {
	stats := sessionStats{
		entryPath: s.EntryPath,
		exitPath:  s.ExitPath,
	}

	counted := 0
	longDuration := false
	for _, ev := range evs {
		if eventDuration(ev) > engagementDurationSeconds {
			longDuration = true
		}
		if isExitEvent(ev) {
			continue
		}
		counted++
	}

	if len(evs) > 0 {
		if p := evs[0].Path; p != "" {
			stats.entryPath = p
		}
		if p := evs[len(evs)-1].Path; p != "" {
			stats.exitPath = p
		}
	}

	stats.engaged = counted >= 2 || longDuration
	stats.bounced = counted == 1
	return stats
}

func isExitEvent(ev events.Event) bool {
	return ev.Type == events.EventTypeCustom && ev.Name == events.EventNameExit
}

// eventDuration extracts a numeric duration payload field, 0 when absent.
func eventDuration(ev events.Event) float64 {
	data := ev.Data.AsMap()
	if data == nil {
		return 0
	}
	switch v := data["duration"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// aggregate is the complete fold over one window.
type aggregate struct {
	pageViews    int64
	visitors     int64
	newVisitors  int64
	engaged      int64
	bounced      int64
	durationSum  time.Duration
	durationN    int64
	pages        *counter
	entryPages   *counter
	exitPages    *counter
	customEvents *counter
	referrers    *counter
	devices      *counter
	browsers     *counter
	languages    *counter
	countries    *counter
	regions      *counter
}

func (e *Engine) fold(sessionRows []sessions.Session, eventRows []events.Event) *aggregate {
	bySession := make(map[uint][]events.Event, len(sessionRows))
	for _, ev := range eventRows {
		bySession[ev.SessionID] = append(bySession[ev.SessionID], ev)
	}
	for id := range bySession {
		evs := bySession[id]
		sort.SliceStable(evs, func(i, j int) bool {
			return evs[i].CreatedAt.Before(evs[j].CreatedAt)
		})
	}

	agg := &aggregate{
		pages:        newCounter(),
		entryPages:   newCounter(),
		exitPages:    newCounter(),
		customEvents: newCounter(),
		referrers:    newCounter(),
		devices:      newCounter(),
		browsers:     newCounter(),
		languages:    newCounter(),
		countries:    newCounter(),
		regions:      newCounter(),
	}

	for _, ev := range eventRows {
		switch ev.Type {
		case events.EventTypePageView:
			agg.pageViews++
			agg.pages.Add(orBucket(ev.Path, "/"), 1)
		case events.EventTypeCustom:
			if ev.Name != events.EventNameExit {
				agg.customEvents.Add(ev.Name, 1)
			}
		}
	}

	for _, s := range sessionRows {
		agg.visitors++
		if s.IsNewVisitor {
			agg.newVisitors++
		}

		stats := foldSession(s, bySession[s.ID])
		if stats.engaged {
			agg.engaged++
		}
		if stats.bounced {
			agg.bounced++
		}
		agg.entryPages.Add(orBucket(stats.entryPath, "/"), 1)
		agg.exitPages.Add(orBucket(stats.exitPath, "/"), 1)

		if d := s.Duration(); d > 0 {
			agg.durationSum += d
			agg.durationN++
		}

		agg.referrers.Add(orBucket(s.Referrer, referrers.Direct), 1)
		agg.devices.Add(orBucket(s.Device, unknownBucket), 1)
		agg.browsers.Add(orBucket(s.Browser, unknownBucket), 1)
		agg.languages.Add(orBucket(s.Language, unknownBucket), 1)
		agg.countries.Add(orBucket(s.Country, unknownBucket), 1)
		agg.regions.Add(regionKey(s.Country, s.State), 1)
	}

	return agg
}

func orBucket(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func regionKey(country, state string) string {
	if country == "" {
		return unknownBucket
	}
	if state == "" {
		return country
	}
	return country + "|" + state
}

// Metrics computes the scalar figures for one window.
func (e *Engine) Metrics(websiteID uint, tf timeframe.TimeFrame) (Metrics, error) {
	key := windowKey(websiteID, "metrics", tf)
	if cached, ok := e.tier.Get(key); ok {
		return cached.(Metrics), nil
	}

	sessionRows, err := e.fetchSessions(websiteID, tf)
	if err != nil {
		return Metrics{}, err
	}
	eventRows, err := e.fetchEvents(websiteID, tf)
	if err != nil {
		return Metrics{}, err
	}

	agg := e.fold(sessionRows, eventRows)
	metrics := agg.metrics()

	e.tier.SetWithTTL(key, metrics, derivedTTL)
	return metrics, nil
}

func (a *aggregate) metrics() Metrics {
	metrics := Metrics{
		PageViews:          a.pageViews,
		Visitors:           a.visitors,
		NewVisitors:        a.newVisitors,
		ReturningVisitors:  a.visitors - a.newVisitors,
		AvgSessionDuration: "00:00",
	}
	if a.visitors > 0 {
		metrics.EngagementRate = roundRate(a.engaged, a.visitors)
		metrics.BounceRate = roundRate(a.bounced, a.visitors)
	}
	if a.durationN > 0 {
		secs := int64(a.durationSum.Seconds()) / a.durationN
		metrics.AvgSessionSeconds = secs
		metrics.AvgSessionDuration = formatDuration(secs)
	}
	return metrics
}

// Reports computes the ranked breakdowns for one window. Country codes are
// expanded to common names; region keys keep the country prefix so equal
// state names in different countries stay distinct.
func (e *Engine) Reports(websiteID uint, tf timeframe.TimeFrame, limit int) (Reports, error) {
	key := fmt.Sprintf("%s:%d", windowKey(websiteID, "reports", tf), limit)
	if cached, ok := e.tier.Get(key); ok {
		return cached.(Reports), nil
	}

	sessionRows, err := e.fetchSessions(websiteID, tf)
	if err != nil {
		return Reports{}, err
	}
	eventRows, err := e.fetchEvents(websiteID, tf)
	if err != nil {
		return Reports{}, err
	}
	errorRows, err := e.fetchErrors(websiteID, tf)
	if err != nil {
		return Reports{}, err
	}

	agg := e.fold(sessionRows, eventRows)

	errorCounter := newCounter()
	for _, row := range errorRows {
		errorCounter.Add(row.Message, row.Count)
	}

	reports := Reports{
		Pages:        agg.pages.Breakdowns(agg.pageViews, limit),
		EntryPages:   agg.entryPages.Breakdowns(agg.visitors, limit),
		ExitPages:    agg.exitPages.Breakdowns(agg.visitors, limit),
		CustomEvents: agg.customEvents.Breakdowns(agg.customEvents.Total(), limit),
		Referrers:    e.friendlyReferrers(agg.referrers.Breakdowns(agg.visitors, limit)),
		Devices:      agg.devices.Breakdowns(agg.visitors, limit),
		Browsers:     agg.browsers.Breakdowns(agg.visitors, limit),
		Languages:    agg.languages.Breakdowns(agg.visitors, limit),
		Countries:    e.countryNames(agg.countries.Breakdowns(agg.visitors, limit)),
		Regions:      e.regionNames(agg.regions.Breakdowns(agg.visitors, limit)),
		Errors:       errorCounter.Breakdowns(errorCounter.Total(), limit),
	}

	e.tier.SetWithTTL(key, reports, derivedTTL)
	return reports, nil
}

// Trends buckets the window's records per UTC day, zero-filled.
func (e *Engine) Trends(websiteID uint, tf timeframe.TimeFrame) (Trends, error) {
	key := windowKey(websiteID, "trends", tf)
	if cached, ok := e.tier.Get(key); ok {
		return cached.(Trends), nil
	}

	sessionRows, err := e.fetchSessions(websiteID, tf)
	if err != nil {
		return Trends{}, err
	}
	eventRows, err := e.fetchEvents(websiteID, tf)
	if err != nil {
		return Trends{}, err
	}

	days := tf.DayBuckets()
	index := make(map[string]int, len(days))
	trends := Trends{
		Days:           make([]string, len(days)),
		PageViews:      make([]int64, len(days)),
		Sessions:       make([]int64, len(days)),
		EngagementRate: make([]int, len(days)),
		BounceRate:     make([]int, len(days)),
	}
	for i, day := range days {
		label := day.Format("2006-01-02")
		trends.Days[i] = label
		index[label] = i
	}

	daySessions := make([][]sessions.Session, len(days))
	dayEvents := make([][]events.Event, len(days))
	for _, s := range sessionRows {
		if i, ok := index[s.CreatedAt.UTC().Format("2006-01-02")]; ok {
			daySessions[i] = append(daySessions[i], s)
		}
	}
	for _, ev := range eventRows {
		if i, ok := index[ev.CreatedAt.UTC().Format("2006-01-02")]; ok {
			dayEvents[i] = append(dayEvents[i], ev)
		}
	}

	for i := range days {
		agg := e.fold(daySessions[i], dayEvents[i])
		m := agg.metrics()
		trends.PageViews[i] = m.PageViews
		trends.Sessions[i] = m.Visitors
		trends.EngagementRate[i] = m.EngagementRate
		trends.BounceRate[i] = m.BounceRate
	}

	e.tier.SetWithTTL(key, trends, derivedTTL)
	return trends, nil
}

// ActiveVisitors counts sessions updated within the last five minutes.
func (e *Engine) ActiveVisitors(websiteID uint) (int64, error) {
	key := fmt.Sprintf("%d:active", websiteID)
	if cached, ok := e.tier.Get(key); ok {
		return cached.(int64), nil
	}

	count, err := sessions.CountActive(e.db, websiteID, activeWindow)
	if err != nil {
		return 0, err
	}

	e.tier.SetWithTTL(key, count, derivedTTL)
	return count, nil
}

// PercentChange compares two non-negative values as a rounded percentage.
// A zero previous value maps to +100 when the current value grew and 0
// otherwise, so callers never see NaN or infinities.
func PercentChange(current, previous int64) int {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	change := float64(current-previous) / float64(previous) * 100
	return int(math.Round(change))
}

func roundRate(part, whole int64) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// formatDuration renders whole seconds as mm:ss; hours spill into the
// minute field.
func formatDuration(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// friendlyReferrers swaps known hostnames for display names.
func (e *Engine) friendlyReferrers(items []Breakdown) []Breakdown {
	for i := range items {
		items[i].Key = referrers.FriendlyName(items[i].Key)
	}
	return items
}

// countryNames expands ISO codes into common names, upper-casing codes
// the country database does not know.
func (e *Engine) countryNames(items []Breakdown) []Breakdown {
	caser := cases.Upper(language.AmericanEnglish)
	for i := range items {
		if items[i].Key == unknownBucket {
			continue
		}
		country, err := e.countries.FindCountryByAlpha(items[i].Key)
		if err != nil {
			items[i].Key = caser.String(items[i].Key)
			continue
		}
		items[i].Key = country.Name.Common
	}
	return items
}

// regionNames renders "cc|state" keys as "State, Country".
func (e *Engine) regionNames(items []Breakdown) []Breakdown {
	caser := cases.Title(language.AmericanEnglish)
	for i := range items {
		key := items[i].Key
		if key == unknownBucket {
			continue
		}
		countryCode, state, found := cutRegionKey(key)
		countryName := caser.String(countryCode)
		if country, err := e.countries.FindCountryByAlpha(countryCode); err == nil {
			countryName = country.Name.Common
		}
		if !found {
			items[i].Key = countryName
			continue
		}
		items[i].Key = fmt.Sprintf("%s, %s", caser.String(state), countryName)
	}
	return items
}

func cutRegionKey(key string) (country, state string, found bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return key, "", false
}
