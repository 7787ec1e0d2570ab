package websites

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// AllowedOrigins answers CORS preflight checks: an origin is allowed when
// its hostname matches a known, non-archived website domain. The domain set
// is refreshed from storage on a TTL with a single in-flight refresh shared
// across concurrent callers.
type AllowedOrigins struct {
	db     *gorm.DB
	logger *slog.Logger
	ttl    time.Duration

	mu        sync.RWMutex
	domains   map[string]struct{}
	fetchedAt time.Time

	group singleflight.Group
}

// NewAllowedOrigins creates the origin allowlist with the given refresh TTL.
func NewAllowedOrigins(db *gorm.DB, logger *slog.Logger, ttl time.Duration) *AllowedOrigins {
	return &AllowedOrigins{
		db:      db,
		logger:  logger,
		ttl:     ttl,
		domains: make(map[string]struct{}),
	}
}

// IsAllowed reports whether origin's hostname belongs to a known website.
// A failed refresh falls back to the last known set rather than rejecting
// everything.
func (a *AllowedOrigins) IsAllowed(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	a.refreshIfStale()

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.domains[host]
	return ok
}

func (a *AllowedOrigins) refreshIfStale() {
	a.mu.RLock()
	stale := time.Since(a.fetchedAt) >= a.ttl
	a.mu.RUnlock()
	if !stale {
		return
	}

	// singleflight collapses concurrent refreshes into one query; every
	// caller waits for the same result.
	a.group.Do("refresh", func() (interface{}, error) {
		var rows []Website
		if err := a.db.Where("archived = ?", false).Find(&rows).Error; err != nil {
			a.logger.Error("Failed to refresh allowed origins", slog.Any("error", err))
			return nil, err
		}

		domains := make(map[string]struct{}, len(rows))
		for _, w := range rows {
			domains[strings.ToLower(w.Domain)] = struct{}{}
		}

		a.mu.Lock()
		a.domains = domains
		a.fetchedAt = time.Now()
		a.mu.Unlock()
		return nil, nil
	})
}

// Invalidate forces a refresh on the next check; called after website
// create/archive/delete.
func (a *AllowedOrigins) Invalidate() {
	a.mu.Lock()
	a.fetchedAt = time.Time{}
	a.mu.Unlock()
}
