// Package websites owns the tracked-website model and its cached lookups.
package websites

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"glance/internal/cache"
	"glance/internal/models"
)

// WebsiteNotFoundError represents an error when a website is not found
type WebsiteNotFoundError struct {
	Key string
}

func (e *WebsiteNotFoundError) Error() string {
	return fmt.Sprintf("website not found: %s", e.Key)
}

// NewWebsiteNotFoundError creates a new WebsiteNotFoundError
func NewWebsiteNotFoundError(key string) *WebsiteNotFoundError {
	return &WebsiteNotFoundError{Key: key}
}

// Website represents a tracked website. The tracking ID is the public,
// rotatable identifier beacons carry; the numeric ID never leaves storage.
type Website struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackingID     string      `gorm:"uniqueIndex;size:36;not null" json:"tracking_id"`
	Domain         string      `gorm:"uniqueIndex;not null" json:"domain"`
	Archived       bool        `gorm:"not null;default:false" json:"archived"`
	BlacklistedIPs models.JSON `json:"blacklisted_ips"` // JSON array of IP strings
	AllowLocalhost bool        `gorm:"not null;default:false" json:"allow_localhost"`
	StoreRawIPs    bool        `gorm:"not null;default:false" json:"store_raw_ips"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CreateWebsite inserts a website, assigning a fresh tracking ID when none
// is set.
func CreateWebsite(db *gorm.DB, w *Website) error {
	if w.TrackingID == "" {
		w.TrackingID = uuid.NewString()
	}
	w.Domain = strings.ToLower(strings.TrimSpace(w.Domain))
	return db.Create(w).Error
}

// RotateTrackingID replaces the public tracking ID, invalidating every
// deployed snippet that still carries the old one. The stale cache entry is
// evicted so beacons with the old ID are rejected immediately.
func RotateTrackingID(db *gorm.DB, tier *cache.TTLCache, w *Website) error {
	oldID := w.TrackingID
	w.TrackingID = uuid.NewString()
	if err := db.Model(w).Update("tracking_id", w.TrackingID).Error; err != nil {
		w.TrackingID = oldID
		return err
	}
	tier.Delete(oldID)
	return nil
}

// GetByTrackingID retrieves a website by its public tracking ID. Not-found
// is reported through WebsiteNotFoundError.
func GetByTrackingID(db *gorm.DB, trackingID string) (*Website, error) {
	var website Website
	if err := db.Where("tracking_id = ?", trackingID).First(&website).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewWebsiteNotFoundError(trackingID)
		}
		return nil, fmt.Errorf("unexpected error querying website: %w", err)
	}
	return &website, nil
}

// GetWebsiteByDomain retrieves a website by exact domain match.
func GetWebsiteByDomain(db *gorm.DB, domain string) (*Website, error) {
	var website Website
	if err := db.Where("domain = ?", strings.ToLower(domain)).First(&website).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewWebsiteNotFoundError(domain)
		}
		return nil, fmt.Errorf("unexpected error querying website: %w", err)
	}
	return &website, nil
}

// IsIPBlacklisted reports whether ip appears in the website's blacklist.
func (w *Website) IsIPBlacklisted(ip string) bool {
	if len(w.BlacklistedIPs) == 0 {
		return false
	}

	var ips []string
	if err := json.Unmarshal(w.BlacklistedIPs, &ips); err != nil {
		return false
	}

	for _, blocked := range ips {
		if strings.TrimSpace(blocked) == ip {
			return true
		}
	}
	return false
}

// SetBlacklistedIPs stores the blacklist as a JSON array.
func (w *Website) SetBlacklistedIPs(ips []string) {
	data, err := json.Marshal(ips)
	if err != nil {
		return
	}
	w.BlacklistedIPs = models.JSON(data)
}

// GetCachedByTrackingID resolves a website through the website cache tier
// (short TTL: config changes like archival must take effect quickly).
func GetCachedByTrackingID(db *gorm.DB, tier *cache.TTLCache, trackingID string) (*Website, error) {
	if cached, ok := tier.Get(trackingID); ok {
		return cached.(*Website), nil
	}

	website, err := GetByTrackingID(db, trackingID)
	if err != nil {
		return nil, err
	}

	tier.Set(trackingID, website)
	return website, nil
}
