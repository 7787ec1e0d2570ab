// Package sessions owns the session window: the record, the inactivity
// state machine and the sticky resolver keyed by visitor hash.
package sessions

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"glance/internal/cache"
)

// Session is a bounded window of activity by one visitor. Its lifetime is
// bounded by inactivity, not by an explicit close: UpdatedAt is the last
// activity marker and the duration anchor.
type Session struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID    uint      `gorm:"index:idx_session_website_created;not null" json:"website_id"`
	VisitorID    uint      `gorm:"index;not null" json:"visitor_id"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	Device       string    `json:"device"`
	Language     string    `json:"language"`
	ScreenWidth  int       `json:"screen_width"`
	ScreenHeight int       `json:"screen_height"`
	EntryPath    string    `json:"entry_path"`
	ExitPath     string    `json:"exit_path"`
	Referrer     string    `json:"referrer"`
	Country      string    `json:"country"`
	State        string    `json:"state"`
	RawIP        string    `json:"raw_ip"`
	IsNewVisitor bool      `gorm:"not null;default:false" json:"is_new_visitor"`
	CreatedAt    time.Time `gorm:"index:idx_session_website_created" json:"created_at"`
	UpdatedAt    time.Time `gorm:"index" json:"updated_at"`
}

// Duration returns the session length so far.
func (s *Session) Duration() time.Duration {
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// affinity is the cached per-visitor-hash window state. It is volatile:
// a process restart forgets all open windows and the next beacon starts
// fresh sessions.
type affinity struct {
	sessionID    uint
	lastActivity time.Time
	eventCount   int
}

// NewSessionData carries the beacon-derived fields a fresh session is
// populated from.
type NewSessionData struct {
	Browser      string
	OS           string
	Device       string
	Language     string
	ScreenWidth  int
	ScreenHeight int
	Path         string
	Referrer     string
	Country      string
	State        string
	RawIP        string // empty unless the website stores raw IPs
	IsNewVisitor bool
}

// Resolution is the outcome of resolving a beacon to a session window.
type Resolution struct {
	SessionID    uint
	IsNewSession bool
}

// Resolver maps visitor hashes to open session windows through the session
// affinity cache tier.
type Resolver struct {
	tier    *cache.TTLCache
	timeout time.Duration
	now     func() time.Time
}

// NewResolver creates a resolver with the configured inactivity timeout.
// The affinity tier's TTL should match the timeout so idle entries also age
// out of memory.
func NewResolver(tier *cache.TTLCache, timeout time.Duration) *Resolver {
	return &Resolver{tier: tier, timeout: timeout, now: time.Now}
}

// Resolve returns the session window for the visitor, creating a new one
// when the cached window expired, was never seen, or references a session
// row that no longer exists in storage.
func (r *Resolver) Resolve(db *gorm.DB, visitorHash string, visitorID, websiteID uint, data NewSessionData) (Resolution, error) {
	now := r.now()

	if cached, ok := r.tier.Get(visitorHash); ok {
		aff := cached.(*affinity)
		if Evaluate(now, aff.lastActivity, r.timeout) == StateActive {
			touched, err := r.touch(db, aff.sessionID, data.Path, now)
			if err != nil {
				return Resolution{}, err
			}
			if touched {
				r.tier.Set(visitorHash, &affinity{
					sessionID:    aff.sessionID,
					lastActivity: now,
					eventCount:   aff.eventCount + 1,
				})
				return Resolution{SessionID: aff.sessionID, IsNewSession: false}, nil
			}
			// The session row was deleted externally; fall through and
			// open a fresh window.
		}
		r.tier.Delete(visitorHash)
	}

	session := Session{
		WebsiteID:    websiteID,
		VisitorID:    visitorID,
		Browser:      data.Browser,
		OS:           data.OS,
		Device:       data.Device,
		Language:     data.Language,
		ScreenWidth:  data.ScreenWidth,
		ScreenHeight: data.ScreenHeight,
		EntryPath:    data.Path,
		ExitPath:     data.Path,
		Referrer:     data.Referrer,
		Country:      data.Country,
		State:        data.State,
		RawIP:        data.RawIP,
		IsNewVisitor: data.IsNewVisitor,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := db.Create(&session).Error; err != nil {
		return Resolution{}, fmt.Errorf("failed to create session: %w", err)
	}

	r.tier.Set(visitorHash, &affinity{sessionID: session.ID, lastActivity: now, eventCount: 1})
	return Resolution{SessionID: session.ID, IsNewSession: true}, nil
}

// touch updates the exit path and last-activity marker of an open session.
// It reports false when the session row no longer exists.
func (r *Resolver) touch(db *gorm.DB, sessionID uint, path string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"updated_at": now.UTC(),
	}
	if path != "" {
		updates["exit_path"] = path
	}

	result := db.Model(&Session{}).Where("id = ?", sessionID).Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateExitPath sets the exit path of a session to the path of the most
// recently processed event.
func UpdateExitPath(db *gorm.DB, sessionID uint, path string) error {
	if path == "" {
		return nil
	}
	return db.Model(&Session{}).Where("id = ?", sessionID).
		Update("exit_path", path).Error
}

// SetClock overrides the resolver's time source; intended for tests.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// CountActive counts sessions updated within the activity window ending
// now; the reporting layer uses a 5-minute window for "active users".
func CountActive(db *gorm.DB, websiteID uint, window time.Duration) (int64, error) {
	var count int64
	err := db.Model(&Session{}).
		Where("website_id = ? AND updated_at >= ?", websiteID, time.Now().UTC().Add(-window)).
		Count(&count).Error
	return count, err
}
