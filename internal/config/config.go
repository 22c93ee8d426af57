// Package config loads process configuration from the environment and
// optional .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers accepted by USERGRID_STORAGE_DRIVER.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBlob     = "blob"
)

// DefaultEnvFiles are consulted by Load when no files are named.
var DefaultEnvFiles = []string{".env", ".env.local"}

// S3Options configures the S3 blob backend.
type S3Options struct {
	Bucket    string `env:"USERGRID_BLOB_S3_BUCKET"`
	Region    string `env:"USERGRID_BLOB_S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"USERGRID_BLOB_S3_ENDPOINT"`
	PathStyle bool   `env:"USERGRID_BLOB_S3_PATH_STYLE" envDefault:"false"`
}

// BlobOptions configures the blob persistence driver.
type BlobOptions struct {
	Driver string `env:"USERGRID_BLOB_DRIVER" envDefault:"fs"`
	FSRoot string `env:"USERGRID_BLOB_FS_ROOT" envDefault:"./blobdata"`
	Prefix string `env:"USERGRID_BLOB_PREFIX" envDefault:"users/"`
	S3     S3Options
}

// StorageOptions selects the persistence backend.
type StorageOptions struct {
	Driver      string `env:"USERGRID_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"USERGRID_SQLITE_PATH" envDefault:"usergrid.db"`
	PostgresDSN string `env:"USERGRID_POSTGRES_DSN" envDefault:"postgres://localhost/usergrid?sslmode=disable"`
	Blob        BlobOptions
}

// Config is the full process configuration.
type Config struct {
	HTTPAddr        string        `env:"USERGRID_HTTP_ADDR" envDefault:":8080"`
	SeedFile        string        `env:"USERGRID_SEED_FILE"`
	CORSOrigins     []string      `env:"USERGRID_CORS_ORIGINS" envDefault:"*" envSeparator:","`
	MetricsPath     string        `env:"USERGRID_METRICS_PATH" envDefault:"/metrics"`
	ShutdownTimeout time.Duration `env:"USERGRID_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	APIURL          string        `env:"USERGRID_API_URL" envDefault:"http://localhost:8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`
	LogEncoding     string        `env:"LOG_ENCODING" envDefault:"json"`
	Storage         StorageOptions
}

// LoadEnv loads the env files that exist and reports how many were read.
// Variables already set in the process win over file contents.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files (DefaultEnvFiles when none are given), parses the
// environment and validates the result.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	if _, err := LoadEnv(files); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	case StorageBlob:
		switch c.Storage.Blob.Driver {
		case "fs", "memory":
		case "s3":
			if c.Storage.Blob.S3.Bucket == "" {
				return fmt.Errorf("USERGRID_BLOB_S3_BUCKET is required when USERGRID_BLOB_DRIVER is s3")
			}
		default:
			return fmt.Errorf("unknown blob driver %q", c.Storage.Blob.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with /, got %q", c.MetricsPath)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
