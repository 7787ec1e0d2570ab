// Package collect wires the ingestion write path: one inbound beacon runs
// through sanitization, admission control, bot filtering, website lookup,
// visitor and session resolution, event normalization and change
// notification.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"glance/internal/cache"
	"glance/internal/config"
	"glance/internal/events"
	"glance/internal/limiter"
	"glance/internal/notify"
	"glance/internal/pkg/geoip"
	"glance/internal/pkg/referrers"
	"glance/internal/pkg/useragent"
	"glance/internal/sanitize"
	"glance/internal/sessions"
	"glance/internal/visitors"
	"glance/internal/websites"
)

// Beacon batch types.
const (
	BeaconTypeBatch    = "batch"
	BeaconTypeErrors   = "errors"
	BeaconTypeExit     = "exit"
	BeaconTypeIdentify = "identify"
)

// ScreenSize carries the client viewport dimensions.
type ScreenSize struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Identity is the payload of an identify beacon.
type Identity struct {
	UserID   string                 `json:"userId"`
	Name     string                 `json:"name"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Beacon is the JSON body of one collection call.
type Beacon struct {
	SiteID   string             `json:"sid"`
	Type     string             `json:"type"`
	URL      string             `json:"url"`
	Referrer string             `json:"referrer"`
	Language string             `json:"language"`
	Screen   ScreenSize         `json:"screen"`
	Duration float64            `json:"duration"`
	Events   []events.WireEvent `json:"events"`
	Errors   []events.WireError `json:"errors"`
	Identity *Identity          `json:"identity"`
}

// Request is a beacon plus its transport-level context.
type Request struct {
	Beacon
	IPAddress      string
	UserAgent      string
	AcceptLanguage string
}

// Outcome classifies how the pipeline disposed of a request.
type Outcome int

const (
	// OutcomeAccepted means records were written.
	OutcomeAccepted Outcome = iota
	// OutcomeDropped means the request was acknowledged with no side
	// effects (bots, archived sites, blacklisted IPs).
	OutcomeDropped
	// OutcomeRateLimited means admission control rejected the request.
	OutcomeRateLimited
	// OutcomeBadRequest means the beacon was malformed or named an
	// unknown site.
	OutcomeBadRequest
	// OutcomeServerError means the record store failed for this request.
	OutcomeServerError
)

// Pipeline is the assembled write path. All shared mutable state lives in
// the injected cache tiers and the record store; requests are processed
// concurrently.
type Pipeline struct {
	db       *gorm.DB
	logger   *slog.Logger
	cfg      *config.Config
	tiers    *cache.Tiers
	limiter  *limiter.Limiter
	visitors *visitors.Resolver
	sessions *sessions.Resolver
	broker   *notify.Broker
}

// New assembles the pipeline from its dependencies.
func New(db *gorm.DB, logger *slog.Logger, cfg *config.Config, tiers *cache.Tiers, lim *limiter.Limiter, broker *notify.Broker) *Pipeline {
	return &Pipeline{
		db:       db,
		logger:   logger,
		cfg:      cfg,
		tiers:    tiers,
		limiter:  lim,
		visitors: visitors.NewResolver(tiers.Visitor, cfg.PrivateKey),
		sessions: sessions.NewResolver(tiers.Session, time.Duration(cfg.SessionTimeoutSeconds)*time.Second),
		broker:   broker,
	}
}

// SessionResolver exposes the session resolver; intended for tests that
// need to control its clock.
func (p *Pipeline) SessionResolver() *sessions.Resolver {
	return p.sessions
}

// Process runs one beacon through the pipeline. The returned error carries
// detail for logging; the Outcome alone determines the HTTP response.
func (p *Pipeline) Process(ctx context.Context, req Request) (Outcome, error) {
	userAgent := sanitize.Line(req.UserAgent, sanitize.MaxUserAgentLength)

	if !p.limiter.Allow(req.IPAddress) {
		return OutcomeRateLimited, nil
	}

	// Bot filtering happens before any storage work. Bots are acknowledged
	// successfully so automated clients neither retry nor learn they were
	// filtered.
	parsedUA := useragent.Parse(userAgent)
	if parsedUA.Bot || req.AcceptLanguage == "" {
		return OutcomeDropped, nil
	}

	if req.SiteID == "" {
		return OutcomeBadRequest, fmt.Errorf("missing site id")
	}

	db := p.db.WithContext(ctx)

	website, err := websites.GetCachedByTrackingID(db, p.tiers.Website, req.SiteID)
	if err != nil {
		var notFound *websites.WebsiteNotFoundError
		if errors.As(err, &notFound) {
			return OutcomeBadRequest, err
		}
		return OutcomeServerError, err
	}

	if website.Archived {
		return OutcomeDropped, nil
	}
	if website.IsIPBlacklisted(req.IPAddress) {
		return OutcomeDropped, nil
	}
	if isLocalhostBeacon(req.URL, req.IPAddress) && !website.AllowLocalhost {
		return OutcomeDropped, nil
	}

	resolution, err := p.visitors.Resolve(db, website.ID, req.IPAddress, userAgent)
	if err != nil {
		return OutcomeServerError, err
	}

	sessionData := p.buildSessionData(req, website, parsedUA, resolution.IsNewVisitor)
	sessionRes, err := p.sessions.Resolve(db, resolution.VisitorHash, resolution.VisitorID, website.ID, sessionData)
	if err != nil {
		return OutcomeServerError, err
	}
	if sessionRes.IsNewSession {
		p.broker.Broadcast(website.ID, notify.ActionSessionCreated)
	}

	outcome, err := p.dispatch(db, req, website.ID, resolution.VisitorID, sessionRes.SessionID)
	if err != nil {
		return outcome, err
	}

	p.invalidateReports(website.ID)
	return outcome, nil
}

// dispatch routes the type-specific payload after identity resolution.
func (p *Pipeline) dispatch(db *gorm.DB, req Request, websiteID, visitorID, sessionID uint) (Outcome, error) {
	switch req.Type {
	case BeaconTypeBatch:
		stored, lastPath := events.PersistBatch(db, p.logger, req.Events, sessionID, websiteID)
		if lastPath != "" {
			if err := sessions.UpdateExitPath(db, sessionID, lastPath); err != nil {
				p.logger.Error("Failed to update exit path", slog.Any("error", err))
			}
		}
		if len(stored) > 0 {
			p.broker.Broadcast(websiteID, notify.ActionEventCreated)
		}
		return OutcomeAccepted, nil

	case BeaconTypeExit:
		event, err := events.Normalize(events.WireEvent{
			T: events.WireCodeCustom,
			P: pathOf(req.URL),
			N: events.EventNameExit,
			D: map[string]interface{}{"duration": req.Duration},
		}, sessionID, websiteID)
		if err != nil {
			return OutcomeServerError, err
		}
		if err := db.Create(event).Error; err != nil {
			return OutcomeServerError, fmt.Errorf("failed to persist exit event: %w", err)
		}
		p.broker.Broadcast(websiteID, notify.ActionEventCreated)
		return OutcomeAccepted, nil

	case BeaconTypeErrors:
		errorBeacons := req.Errors
		if max := p.cfg.MaxErrorsPerBeacon; len(errorBeacons) > max {
			errorBeacons = errorBeacons[:max]
		}
		recorded := 0
		for i, we := range errorBeacons {
			if err := events.RecordError(db, websiteID, we); err != nil {
				p.logger.Error("Failed to record client error",
					slog.Int("index", i),
					slog.Any("error", err))
				continue
			}
			recorded++
		}
		if recorded > 0 {
			p.broker.Broadcast(websiteID, notify.ActionErrorRecorded)
		}
		return OutcomeAccepted, nil

	case BeaconTypeIdentify:
		if req.Identity == nil {
			return OutcomeBadRequest, fmt.Errorf("identify beacon without identity payload")
		}
		err := visitors.Identify(db, visitorID,
			sanitize.Line(req.Identity.UserID, sanitize.MaxEventNameLength),
			sanitize.Line(req.Identity.Name, sanitize.MaxEventNameLength),
			sanitize.Line(req.Identity.Email, sanitize.MaxEventNameLength),
			sanitize.Metadata(req.Identity.Metadata))
		if err != nil {
			return OutcomeServerError, err
		}
		return OutcomeAccepted, nil

	default:
		return OutcomeBadRequest, fmt.Errorf("unknown beacon type: %q", req.Type)
	}
}

// buildSessionData derives the stored session fields from the beacon.
func (p *Pipeline) buildSessionData(req Request, website *websites.Website, parsedUA useragent.UserAgent, isNewVisitor bool) sessions.NewSessionData {
	location := geoip.Lookup(req.IPAddress)

	rawIP := ""
	if website.StoreRawIPs {
		rawIP = req.IPAddress
	}

	return sessions.NewSessionData{
		Browser:      parsedUA.Browser,
		OS:           parsedUA.OS,
		Device:       parsedUA.Device,
		Language:     sanitize.Line(req.Language, 35),
		ScreenWidth:  req.Screen.Width,
		ScreenHeight: req.Screen.Height,
		Path:         pathOf(req.URL),
		Referrer:     referrers.Normalize(req.Referrer),
		Country:      location.CountryCode,
		State:        location.State,
		RawIP:        rawIP,
		IsNewVisitor: isNewVisitor,
	}
}

// invalidateReports drops every cached report entry scoped to the website,
// including the active-user count and overview entries (all report keys are
// prefixed with the website id).
func (p *Pipeline) invalidateReports(websiteID uint) {
	p.tiers.Report.DeletePrefix(fmt.Sprintf("%d:", websiteID))
}

// pathOf extracts a sanitized path from a raw page URL. Bare paths are
// accepted as-is.
func pathOf(rawURL string) string {
	if rawURL == "" {
		return "/"
	}
	if strings.HasPrefix(rawURL, "/") {
		return sanitize.Path(rawURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	return sanitize.Path(parsed.Path)
}

// isLocalhostBeacon reports whether the beacon originates from localhost,
// either by page hostname or by client IP.
func isLocalhostBeacon(rawURL, ip string) bool {
	if ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
