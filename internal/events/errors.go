package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"glance/internal/sanitize"
)

// WireError is one entry of an error beacon's errors array.
type WireError struct {
	Message string `json:"msg"`
	Stack   string `json:"stack"`
	URL     string `json:"url"`
	Count   int64  `json:"count"`
}

// ErrorHash computes the dedup key for a client error: the hex SHA-256 of
// the message joined with the first stack line.
func ErrorHash(message, stack string) string {
	firstLine := stack
	if idx := strings.IndexByte(stack, '\n'); idx >= 0 {
		firstLine = stack[:idx]
	}
	sum := sha256.Sum256([]byte(message + "\n" + firstLine))
	return hex.EncodeToString(sum[:])
}

// RecordError upserts a client error scoped to a website: a hash collision
// increments the stored count atomically and refreshes last-seen, a fresh
// hash inserts a new row. Count increments never go backwards.
func RecordError(db *gorm.DB, websiteID uint, we WireError) error {
	message := sanitize.String(we.Message, sanitize.MaxMessageLength)
	stack := sanitize.String(we.Stack, sanitize.MaxStackLength)
	pageURL := sanitize.String(we.URL, sanitize.MaxPathLength)

	occurrences := we.Count
	if occurrences < 1 {
		occurrences = 1
	}

	now := time.Now().UTC()
	row := JsError{
		WebsiteID: websiteID,
		Hash:      ErrorHash(message, stack),
		Message:   message,
		Stack:     stack,
		URL:       pageURL,
		Count:     occurrences,
		LastSeen:  now,
		CreatedAt: now,
	}

	// The unique (website_id, hash) index makes the upsert atomic relative
	// to concurrent occurrences of the same error.
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "website_id"}, {Name: "hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":     gorm.Expr("count + ?", occurrences),
			"last_seen": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record client error: %w", err)
	}
	return nil
}

// ReconcileDuplicateErrors merges js_error rows that predate the unique
// index or slipped through storage anomalies: per (website, hash) the
// earliest row keeps the summed count and the latest last-seen, the rest
// are deleted. Idempotent and safe to repeat.
func ReconcileDuplicateErrors(db *gorm.DB) (int64, error) {
	var groups []struct {
		WebsiteID uint
		Hash      string
	}
	err := db.Model(&JsError{}).
		Select("website_id, hash").
		Group("website_id, hash").
		Having("COUNT(*) > 1").
		Scan(&groups).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find duplicate errors: %w", err)
	}

	var merged int64
	for _, g := range groups {
		var rows []JsError
		err := db.Where("website_id = ? AND hash = ?", g.WebsiteID, g.Hash).
			Order("created_at ASC, id ASC").
			Find(&rows).Error
		if err != nil {
			return merged, err
		}
		if len(rows) < 2 {
			continue
		}

		survivor := rows[0]
		total := survivor.Count
		lastSeen := survivor.LastSeen
		ids := make([]uint, 0, len(rows)-1)
		for _, row := range rows[1:] {
			total += row.Count
			if row.LastSeen.After(lastSeen) {
				lastSeen = row.LastSeen
			}
			ids = append(ids, row.ID)
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&JsError{}).Where("id = ?", survivor.ID).
				Updates(map[string]interface{}{"count": total, "last_seen": lastSeen}).Error; err != nil {
				return err
			}
			return tx.Where("id IN ?", ids).Delete(&JsError{}).Error
		})
		if err != nil {
			return merged, err
		}
		merged += int64(len(ids))
	}

	return merged, nil
}
