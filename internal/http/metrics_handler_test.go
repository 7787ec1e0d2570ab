package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glance/internal/analytics"
	"glance/internal/events"
	apphttp "glance/internal/http"
	"glance/internal/testsupport"
)

func newMetricsApp(t *testing.T) (*fiber.App, uint) {
	t.Helper()

	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	engine := analytics.NewEngine(db, logger, testsupport.NewTestTiers().Report)
	handler := apphttp.NewMetricsHandler(engine, logger)

	app := fiber.New()
	app.Get("/api/v1/metrics", handler.Metrics)

	website := testsupport.CreateTestWebsite(t, db, "metrics.test")
	session := testsupport.CreateTestSession(t, db, website.ID, 1, time.Now().UTC())
	testsupport.CreateTestEvent(t, db, website.ID, session.ID, events.EventTypePageView, "/", "", session.CreatedAt)

	return app, website.ID
}

func TestMetricsEndpoint(t *testing.T) {
	app, websiteID := newMetricsApp(t)

	get := func(t *testing.T, path string) *http.Response {
		t.Helper()
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		return resp
	}

	t.Run("returns the overview payload", func(t *testing.T) {
		resp := get(t, fmt.Sprintf("/api/v1/metrics?websiteId=%d&period=today", websiteID))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var overview analytics.Overview
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&overview))
		assert.Equal(t, int64(1), overview.Metrics.PageViews)
		assert.Equal(t, int64(1), overview.Metrics.Visitors)
		assert.Len(t, overview.Trends.Days, 1)
	})

	t.Run("unknown period falls back to the default range", func(t *testing.T) {
		resp := get(t, fmt.Sprintf("/api/v1/metrics?websiteId=%d&period=last_century", websiteID))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var overview analytics.Overview
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&overview))
		assert.Len(t, overview.Trends.Days, 7)
	})

	t.Run("missing websiteId returns 400", func(t *testing.T) {
		resp := get(t, "/api/v1/metrics?period=today")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("zero websiteId returns 400", func(t *testing.T) {
		resp := get(t, "/api/v1/metrics?websiteId=0")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
