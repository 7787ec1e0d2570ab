// Package useragent classifies user-agent strings into browser, operating
// system, device class and bot status. The patterns live in embedded yaml
// databases compiled once at first use.
package useragent

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// UserAgent is the classification result for one user-agent string.
type UserAgent struct {
	UserAgent string
	Browser   string
	OS        string
	Device    string
	Mobile    bool
	Tablet    bool
	Desktop   bool
	Bot       bool
}

// Device classes
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

//go:embed database/bots.yml
//go:embed database/browsers.yml
//go:embed database/oss.yml
var databaseFiles embed.FS

type patternEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type compiledEntry struct {
	re   *pcre.Regexp
	name string
}

var (
	loadOnce sync.Once
	loadErr  error

	botPatterns     []compiledEntry
	browserPatterns []compiledEntry
	osPatterns      []compiledEntry

	tabletRe *pcre.Regexp
	mobileRe *pcre.Regexp
)

func loadDatabase() error {
	loadOnce.Do(func() {
		var err error
		if botPatterns, err = compileFile("database/bots.yml"); err != nil {
			loadErr = err
			return
		}
		if browserPatterns, err = compileFile("database/browsers.yml"); err != nil {
			loadErr = err
			return
		}
		if osPatterns, err = compileFile("database/oss.yml"); err != nil {
			loadErr = err
			return
		}

		tabletRe = pcre.MustCompile(`(?i)ipad|tablet|kindle|silk|playbook|nexus (7|9|10)`)
		mobileRe = pcre.MustCompile(`(?i)mobi|iphone|ipod|android|windows phone|blackberry|opera mini`)
	})
	return loadErr
}

func compileFile(path string) ([]compiledEntry, error) {
	raw, err := databaseFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("useragent: failed to read %s: %w", path, err)
	}

	var entries []patternEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("useragent: failed to parse %s: %w", path, err)
	}

	compiled := make([]compiledEntry, 0, len(entries))
	for _, e := range entries {
		re, err := pcre.Compile("(?i)" + e.Regex)
		if err != nil {
			return nil, fmt.Errorf("useragent: bad pattern %q in %s: %w", e.Regex, path, err)
		}
		compiled = append(compiled, compiledEntry{re: re, name: e.Name})
	}
	return compiled, nil
}

// Parse classifies ua. An empty string is treated as a bot per the
// admission rules: real browsers always send a user agent.
func Parse(ua string) UserAgent {
	result := UserAgent{UserAgent: ua}

	if strings.TrimSpace(ua) == "" {
		result.Bot = true
		return result
	}

	if err := loadDatabase(); err != nil {
		// A broken embedded database is a build defect; classify nothing.
		return result
	}

	for _, p := range botPatterns {
		if p.re.MatchString(ua) {
			result.Bot = true
			return result
		}
	}

	for _, p := range browserPatterns {
		if p.re.MatchString(ua) {
			result.Browser = p.name
			break
		}
	}

	for _, p := range osPatterns {
		if p.re.MatchString(ua) {
			result.OS = p.name
			break
		}
	}

	switch {
	case tabletRe.MatchString(ua):
		result.Tablet = true
		result.Device = DeviceTablet
	case mobileRe.MatchString(ua):
		result.Mobile = true
		result.Device = DeviceMobile
	default:
		result.Desktop = true
		result.Device = DeviceDesktop
	}

	return result
}

// IsBot reports whether ua looks automated without a full classification.
func IsBot(ua string) bool {
	return Parse(ua).Bot
}
