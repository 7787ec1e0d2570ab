// Package visitors owns the anonymous visitor identity: the deterministic
// hash, the create-on-miss resolver and the duplicate reconciliation pass.
package visitors

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"glance/internal/cache"
	"glance/internal/models"
)

// Visitor is a long-lived anonymous identity scoped to one website.
// The ingestion path never deletes visitors; retention is a separate
// concern.
type Visitor struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID   uint        `gorm:"index:idx_visitor_identity;not null" json:"website_id"`
	VisitorHash string      `gorm:"index:idx_visitor_identity;size:32;not null" json:"visitor_hash"`
	ExternalID  string      `gorm:"index" json:"external_id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Metadata    models.JSON `json:"metadata"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

// Resolution is the outcome of resolving a beacon to a visitor.
type Resolution struct {
	VisitorID    uint
	VisitorHash  string
	IsNewVisitor bool
}

// Resolver turns (website, ip, user agent) into a visitor record id,
// creating the record on first sight. Concurrent first sights may race to
// create duplicate rows; ReconcileDuplicates merges them later instead of
// serializing the hot path.
type Resolver struct {
	tier *cache.TTLCache
	salt string
}

// NewResolver creates a resolver backed by the visitor cache tier.
func NewResolver(tier *cache.TTLCache, salt string) *Resolver {
	return &Resolver{tier: tier, salt: salt}
}

// Resolve returns the visitor record for the client, creating it when the
// hash has never been seen. Not-found on lookup is an expected outcome,
// not an error.
func (r *Resolver) Resolve(db *gorm.DB, websiteID uint, ipAddress, userAgent string) (Resolution, error) {
	hash := BuildVisitorHash(websiteID, ipAddress, userAgent, r.salt)
	cacheKey := fmt.Sprintf("%d:%s", websiteID, hash)

	if cached, ok := r.tier.Get(cacheKey); ok {
		return Resolution{VisitorID: cached.(uint), VisitorHash: hash, IsNewVisitor: false}, nil
	}

	var visitor Visitor
	err := db.Where("website_id = ? AND visitor_hash = ?", websiteID, hash).
		Order("created_at ASC").
		First(&visitor).Error
	if err == nil {
		r.tier.Set(cacheKey, visitor.ID)
		return Resolution{VisitorID: visitor.ID, VisitorHash: hash, IsNewVisitor: false}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Resolution{}, fmt.Errorf("failed to look up visitor: %w", err)
	}

	visitor = Visitor{
		WebsiteID:   websiteID,
		VisitorHash: hash,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.Create(&visitor).Error; err != nil {
		return Resolution{}, fmt.Errorf("failed to create visitor: %w", err)
	}

	r.tier.Set(cacheKey, visitor.ID)
	return Resolution{VisitorID: visitor.ID, VisitorHash: hash, IsNewVisitor: true}, nil
}

// Identify attaches identity fields from an identify beacon to a visitor.
// Empty fields leave the stored values untouched.
func Identify(db *gorm.DB, visitorID uint, externalID, name, email string, metadata map[string]interface{}) error {
	updates := map[string]interface{}{}
	if externalID != "" {
		updates["external_id"] = externalID
	}
	if name != "" {
		updates["name"] = name
	}
	if email != "" {
		updates["email"] = email
	}
	if doc := models.FromMap(metadata); doc != nil {
		updates["metadata"] = doc
	}
	if len(updates) == 0 {
		return nil
	}

	return db.Model(&Visitor{}).Where("id = ?", visitorID).Updates(updates).Error
}

// duplicateGroup is one (website, hash) pair that accumulated extra rows.
type duplicateGroup struct {
	WebsiteID   uint
	VisitorHash string
}

// ReconcileDuplicates merges visitor rows created by concurrent first
// sights: per (website, hash) the earliest-created row survives, sessions
// are repointed to it and the rest are deleted. The pass is idempotent and
// safe to repeat.
func ReconcileDuplicates(db *gorm.DB, logger *slog.Logger) (int64, error) {
	var groups []duplicateGroup
	err := db.Model(&Visitor{}).
		Select("website_id, visitor_hash").
		Group("website_id, visitor_hash").
		Having("COUNT(*) > 1").
		Scan(&groups).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find duplicate visitors: %w", err)
	}

	var merged int64
	for _, g := range groups {
		var rows []Visitor
		err := db.Where("website_id = ? AND visitor_hash = ?", g.WebsiteID, g.VisitorHash).
			Order("created_at ASC, id ASC").
			Find(&rows).Error
		if err != nil {
			return merged, fmt.Errorf("failed to load duplicate group: %w", err)
		}
		if len(rows) < 2 {
			continue
		}

		survivor := rows[0]
		duplicateIDs := make([]uint, 0, len(rows)-1)
		for _, row := range rows[1:] {
			duplicateIDs = append(duplicateIDs, row.ID)
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Table("sessions").
				Where("visitor_id IN ?", duplicateIDs).
				Update("visitor_id", survivor.ID).Error; err != nil {
				return fmt.Errorf("failed to repoint sessions: %w", err)
			}
			if err := tx.Where("id IN ?", duplicateIDs).Delete(&Visitor{}).Error; err != nil {
				return fmt.Errorf("failed to delete duplicate visitors: %w", err)
			}
			return nil
		})
		if err != nil {
			return merged, err
		}

		merged += int64(len(duplicateIDs))
		logger.Debug("Merged duplicate visitors",
			slog.Uint64("website_id", uint64(g.WebsiteID)),
			slog.String("visitor_hash", g.VisitorHash),
			slog.Int("removed", len(duplicateIDs)))
	}

	return merged, nil
}
