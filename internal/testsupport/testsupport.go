// Package testsupport provides shared test fixtures: in-memory databases,
// a quiet logger and record factories.
package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"glance/internal/cache"
	"glance/internal/database"
	"glance/internal/events"
	"glance/internal/sessions"
	"glance/internal/visitors"
	"glance/internal/websites"
)

// testDBCache shares one database across subtests of the same root test.
var (
	testDBCache   = make(map[string]*gorm.DB)
	testDBCacheMu sync.Mutex
)

func allModels() []any {
	return []any{
		&websites.Website{},
		&visitors.Visitor{},
		&sessions.Session{},
		&events.Event{},
		&events.JsError{},
	}
}

// SetupTestDB opens a uniquely named in-memory database, migrated and
// cached per root test name so subtest closures share a connection.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager wraps the shared in-memory database in a manager so
// tests exercise the serialized write path.
func SetupTestDBManager(t *testing.T) *database.Manager {
	t.Helper()
	return database.NewManagerWithConnection(SetupTestDB(t), GetLogger())
}

// GetLogger returns a logger that discards everything.
func GetLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestTiers returns cache tiers with generous TTLs for tests.
func NewTestTiers() *cache.Tiers {
	return cache.NewTiers(5*time.Minute, 15*time.Minute, 30*time.Minute, 2*time.Minute)
}

// CreateTestWebsite returns the website for domain, creating it with a
// fresh tracking ID on first use.
func CreateTestWebsite(t *testing.T, db *gorm.DB, domain string) *websites.Website {
	t.Helper()

	if existing, err := websites.GetWebsiteByDomain(db, domain); err == nil {
		return existing
	}

	website := &websites.Website{Domain: domain, CreatedAt: time.Now().UTC()}
	if err := websites.CreateWebsite(db, website); err != nil {
		t.Fatalf("testsupport: failed to create website: %v", err)
	}
	return website
}

// CreateTestSession persists a minimal session for the website.
func CreateTestSession(t *testing.T, db *gorm.DB, websiteID, visitorID uint, createdAt time.Time) *sessions.Session {
	t.Helper()

	session := &sessions.Session{
		WebsiteID:    websiteID,
		VisitorID:    visitorID,
		EntryPath:    "/",
		ExitPath:     "/",
		IsNewVisitor: true,
		CreatedAt:    createdAt.UTC(),
		UpdatedAt:    createdAt.UTC(),
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("testsupport: failed to create session: %v", err)
	}
	return session
}

// CreateTestEvent persists one event against a session.
func CreateTestEvent(t *testing.T, db *gorm.DB, websiteID, sessionID uint, eventType events.EventType, path, name string, createdAt time.Time) *events.Event {
	t.Helper()

	event := &events.Event{
		SessionID: sessionID,
		WebsiteID: websiteID,
		Type:      eventType,
		Path:      path,
		Name:      name,
		CreatedAt: createdAt.UTC(),
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("testsupport: failed to create event: %v", err)
	}
	return event
}
