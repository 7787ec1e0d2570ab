// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// Ingestion settings
	SessionTimeoutSeconds  int `mapstructure:"sessiontimeoutseconds"`
	RateLimitMaxRequests   int `mapstructure:"ratelimitmaxrequests"`
	RateLimitWindowSeconds int `mapstructure:"ratelimitwindowseconds"`
	MaxErrorsPerBeacon     int `mapstructure:"maxerrorsperbeacon"`
	StoreTimeoutSeconds    int `mapstructure:"storetimeoutseconds"`

	// Cache TTLs (seconds)
	WebsiteCacheTTLSeconds int `mapstructure:"websitecachettlseconds"`
	VisitorCacheTTLSeconds int `mapstructure:"visitorcachettlseconds"`
	ReportCacheTTLSeconds  int `mapstructure:"reportcachettlseconds"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Data retention settings (0 disables the retention job)
	EventRetentionDays int `mapstructure:"eventretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "glance")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("ratelimitmaxrequests", 100)
		v.SetDefault("ratelimitwindowseconds", 60)
		v.SetDefault("maxerrorsperbeacon", 10)
		v.SetDefault("storetimeoutseconds", 10)
		v.SetDefault("websitecachettlseconds", 300)
		v.SetDefault("visitorcachettlseconds", 900)
		v.SetDefault("reportcachettlseconds", 120)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("eventretentiondays", 0)

		v.BindEnv("appname", "GLANCE_APP_NAME")
		v.BindEnv("appport", "GLANCE_APP_PORT")
		v.BindEnv("environment", "GLANCE_ENV")
		v.BindEnv("loglevel", "GLANCE_LOG_LEVEL")
		v.BindEnv("privatekey", "GLANCE_PRIVATE_KEY")
		v.BindEnv("sessiontimeoutseconds", "GLANCE_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("ratelimitmaxrequests", "GLANCE_RATE_LIMIT_MAX_REQUESTS")
		v.BindEnv("ratelimitwindowseconds", "GLANCE_RATE_LIMIT_WINDOW_SECONDS")
		v.BindEnv("maxerrorsperbeacon", "GLANCE_MAX_ERRORS_PER_BEACON")
		v.BindEnv("storetimeoutseconds", "GLANCE_STORE_TIMEOUT_SECONDS")
		v.BindEnv("websitecachettlseconds", "GLANCE_WEBSITE_CACHE_TTL_SECONDS")
		v.BindEnv("visitorcachettlseconds", "GLANCE_VISITOR_CACHE_TTL_SECONDS")
		v.BindEnv("reportcachettlseconds", "GLANCE_REPORT_CACHE_TTL_SECONDS")
		v.BindEnv("storagepath", "GLANCE_STORAGE_PATH")
		v.BindEnv("geodbpath", "GLANCE_GEO_DB_PATH")
		v.BindEnv("logsdir", "GLANCE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "GLANCE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "GLANCE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "GLANCE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "GLANCE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "GLANCE_DB_MAX_IDLE_CONNS")
		v.BindEnv("eventretentiondays", "GLANCE_EVENT_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		// In production the visitor-hash salt must be explicitly set
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique GLANCE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.RateLimitMaxRequests <= 0 {
		return fmt.Errorf("invalid rate limit max requests: %d", c.RateLimitMaxRequests)
	}
	if c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("invalid rate limit window: %d", c.RateLimitWindowSeconds)
	}
	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid session timeout: %d", c.SessionTimeoutSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for test stability with in-memory sqlite)
// - Development/Production: 10 (allows concurrent reads for parallel report queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
