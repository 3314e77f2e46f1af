package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMongoDB = "mongodb"
	StoreMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Tracking TrackingConfig
	Store    StoreConfig
	MongoDB  MongoDBConfig
	Identity IdentityConfig
	Sheets   SheetsConfig
	Export   ExportConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig holds logger options.
type LogConfig struct {
	Level string
}

// TrackingConfig controls how "today" is computed.
type TrackingConfig struct {
	Timezone           string
	DayRolloverEnabled bool
}

// Location resolves the configured timezone.
func (t TrackingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(t.Timezone)
}

// StoreConfig selects the meal store implementation.
type StoreConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI             string
	DBName          string
	MealsCollection string
	PollInterval    time.Duration
}

// IdentityConfig configures anonymous sign-in. With no API key the service
// signs in locally using AnonymousUserID, or a random id when that is empty.
type IdentityConfig struct {
	APIKey          string
	BaseURL         string
	AnonymousUserID string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the totals export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// ExportConfig holds scheduler-related settings for the totals export.
type ExportConfig struct {
	CronSchedule string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	pollInterval, err := time.ParseDuration(getenvWithDefault("MONGODB_POLL_INTERVAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONGODB_POLL_INTERVAL: %w", err)
	}

	rollover, err := strconv.ParseBool(getenvWithDefault("DAY_ROLLOVER_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAY_ROLLOVER_ENABLED: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Tracking: TrackingConfig{
			Timezone:           getenvWithDefault("TIMEZONE", "Local"),
			DayRolloverEnabled: rollover,
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getenvWithDefault("STORE_DRIVER", StoreMongoDB)),
		},
		MongoDB: MongoDBConfig{
			URI:             getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName:          getenvWithDefault("MONGODB_DB_NAME", "nutrilog"),
			MealsCollection: getenvWithDefault("MONGODB_MEALS_COLLECTION", "meals"),
			PollInterval:    pollInterval,
		},
		Identity: IdentityConfig{
			APIKey:          os.Getenv("IDENTITY_API_KEY"),
			BaseURL:         getenvWithDefault("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com"),
			AnonymousUserID: os.Getenv("ANONYMOUS_USER_ID"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Export: ExportConfig{
			CronSchedule: getenvWithDefault("EXPORT_CRON_SCHEDULE", "55 23 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if _, err := c.Tracking.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a known location: %w", c.Tracking.Timezone, err)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
		if c.MongoDB.MealsCollection == "" {
			return errors.New("MONGODB_MEALS_COLLECTION must not be empty")
		}
		if c.MongoDB.PollInterval <= 0 {
			return errors.New("MONGODB_POLL_INTERVAL must be positive")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Identity.APIKey != "" && c.Identity.BaseURL == "" {
		return errors.New("IDENTITY_BASE_URL must not be empty when IDENTITY_API_KEY is set")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Sheets.Enabled() && c.Export.CronSchedule == "" {
		return errors.New("EXPORT_CRON_SCHEDULE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
