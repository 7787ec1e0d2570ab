package events

import (
	"time"

	"glance/internal/models"
)

// EventType classifies a stored event.
type EventType string

const (
	EventTypePageView EventType = "pageView"
	EventTypeCustom   EventType = "custom"
	EventTypeClick    EventType = "click"
)

// Domain event names for click events.
const (
	EventNameOutbound = "outbound"
	EventNameDownload = "download"
	// EventNameExit is the synthetic event an exit beacon records; it is
	// excluded from bounce counting but its duration payload feeds the
	// engagement heuristic.
	EventNameExit = "exit"
)

// Event is one immutable tracked occurrence within a session.
type Event struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID uint        `gorm:"index;not null" json:"session_id"`
	WebsiteID uint        `gorm:"index:idx_event_website_created;not null" json:"website_id"`
	Type      EventType   `gorm:"index;not null" json:"type"`
	Path      string      `json:"path"`
	Name      string      `gorm:"index" json:"name"`
	Data      models.JSON `json:"data"`
	CreatedAt time.Time   `gorm:"index:idx_event_website_created" json:"created_at"`
}

// JsError is a deduplicated client-side error. Rows are keyed by the
// content hash of (message + first stack line) per website; repeat
// occurrences bump Count instead of inserting.
type JsError struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID uint      `gorm:"uniqueIndex:idx_jserror_identity;not null" json:"website_id"`
	Hash      string    `gorm:"uniqueIndex:idx_jserror_identity;size:64;not null" json:"hash"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack"`
	URL       string    `json:"url"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}
