// Package events maps wire-format beacon payloads to typed domain events
// and owns the deduplicated client-error store.
package events

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"glance/internal/models"
	"glance/internal/sanitize"
)

// Wire event codes sent by the tracking snippet.
const (
	WireCodePageView = "pv"
	WireCodeCustom   = "ev"
	WireCodeOutbound = "out"
	WireCodeDownload = "dl"
)

// WireEvent is one entry of a batch beacon's events array.
type WireEvent struct {
	T string                 `json:"t"` // wire code
	P string                 `json:"p"` // path
	N string                 `json:"n"` // custom event name
	D map[string]interface{} `json:"d"` // shallow event data
	U string                 `json:"u"` // url (outbound/download)
	F string                 `json:"f"` // filename (download)
}

// ErrUnknownWireCode reports a wire code the normalizer does not recognize.
type ErrUnknownWireCode struct {
	Code string
}

func (e *ErrUnknownWireCode) Error() string {
	return fmt.Sprintf("unknown wire event code: %q", e.Code)
}

// Normalize converts a wire event into a typed, sanitized Event scoped to
// a session. An event without a wire path keeps an empty Path so it never
// displaces the session's last known exit path. Unrecognized codes return
// ErrUnknownWireCode; the caller logs and drops them without failing the
// batch.
func Normalize(we WireEvent, sessionID, websiteID uint) (*Event, error) {
	event := &Event{
		SessionID: sessionID,
		WebsiteID: websiteID,
		CreatedAt: time.Now().UTC(),
	}
	if we.P != "" {
		event.Path = sanitize.Path(we.P)
	}

	switch we.T {
	case WireCodePageView:
		event.Type = EventTypePageView

	case WireCodeCustom:
		event.Type = EventTypeCustom
		event.Name = sanitize.EventName(we.N)
		event.Data = models.FromMap(sanitize.Metadata(we.D))

	case WireCodeOutbound:
		event.Type = EventTypeClick
		event.Name = EventNameOutbound
		event.Data = models.FromMap(map[string]interface{}{
			"url": sanitize.String(we.U, sanitize.MaxPathLength),
		})

	case WireCodeDownload:
		event.Type = EventTypeClick
		event.Name = EventNameDownload
		event.Data = models.FromMap(map[string]interface{}{
			"filename": sanitize.Line(we.F, sanitize.MaxEventNameLength),
			"url":      sanitize.String(we.U, sanitize.MaxPathLength),
		})

	default:
		return nil, &ErrUnknownWireCode{Code: we.T}
	}

	return event, nil
}

// PersistBatch normalizes and stores each wire event independently: a
// failure in one event must not abort its siblings. It returns the stored
// events and the path of the last stored event (for the session exit path).
func PersistBatch(db *gorm.DB, logger *slog.Logger, wireEvents []WireEvent, sessionID, websiteID uint) ([]*Event, string) {
	stored := make([]*Event, 0, len(wireEvents))
	lastPath := ""

	for i, we := range wireEvents {
		event, err := Normalize(we, sessionID, websiteID)
		if err != nil {
			logger.Debug("Dropping unrecognized wire event",
				slog.Int("index", i),
				slog.String("code", we.T))
			continue
		}

		if err := db.Create(event).Error; err != nil {
			logger.Error("Failed to persist event",
				slog.Int("index", i),
				slog.String("type", string(event.Type)),
				slog.Any("error", err))
			continue
		}

		stored = append(stored, event)
		if event.Path != "" {
			lastPath = event.Path
		}
	}

	return stored, lastPath
}
