package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMongoDB = "mongodb"
	DriverSQLite  = "sqlite"
	DriverMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	MongoDB  MongoDBConfig
	SQLite   SQLiteConfig
	Advance  AdvanceConfig
	Geofence GeofenceConfig
	Sheets   SheetsConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string `env:"APP_PORT" envDefault:"8080"`
}

// StorageConfig selects the registry backend.
type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER" envDefault:"mongodb"`
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	DBName string `env:"MONGODB_DB_NAME" envDefault:"compost"`
}

// SQLiteConfig holds settings for the embedded registry.
type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"data/compost.db"`
}

// AdvanceConfig drives the weekly advance job.
type AdvanceConfig struct {
	CronSchedule string   `env:"ADVANCE_CRON_SCHEDULE" envDefault:"0 6 * * 1"`
	Timezone     string   `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`
	Facilities   []string `env:"ADVANCE_FACILITIES" envSeparator:","`
	Workers      int      `env:"ADVANCE_WORKERS" envDefault:"4"`
}

// GeofenceConfig holds the delivery radius around a facility.
type GeofenceConfig struct {
	RadiusMeters float64 `env:"GEOFENCE_RADIUS_METERS" envDefault:"300"`
}

// SheetsConfig contains configuration for the Google Sheets audit ledger.
// The ledger is disabled when either field is empty.
type SheetsConfig struct {
	CredentialsPath string `env:"GOOGLE_SHEETS_CREDENTIALS_PATH"`
	LedgerID        string `env:"GOOGLE_SHEET_LEDGER_ID"`
}

// LogConfig holds logger options.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
}

// Enabled reports whether the ledger has credentials and a target spreadsheet.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.LedgerID != ""
}

// Location resolves the configured timezone.
func (c AdvanceConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
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

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
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

	switch c.Storage.Driver {
	case DriverMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return errors.New("SQLITE_PATH must be provided")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Advance.CronSchedule == "" {
		return errors.New("ADVANCE_CRON_SCHEDULE must be provided")
	}

	if _, err := c.Advance.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Advance.Timezone, err)
	}

	if c.Advance.Workers <= 0 {
		c.Advance.Workers = 1
	}

	if c.Geofence.RadiusMeters <= 0 {
		return errors.New("GEOFENCE_RADIUS_METERS must be positive")
	}

	return nil
}
