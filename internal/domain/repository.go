// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Keys of the three blobs held by the Persistence Layer.
const (
	KeyCases         = "kestrel_cases"
	KeyStats         = "kestrel_stats"
	KeyInterventions = "kestrel_history"
)

// Repository is the Persistence Layer: a blocking key-value store holding whole
// serialized collections. Writes are last-write-wins.
type Repository interface {
	// Load returns the blob stored under key, or ErrBlobNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the blob stored under key.
	Save(ctx context.Context, key string, value []byte) error

	// Delete removes the blob stored under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// BatchSaver is implemented by repositories that can replace several blobs
// in one transaction. Either every blob is written or none is.
type BatchSaver interface {
	SaveAll(ctx context.Context, blobs map[string][]byte) error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "memory"
	Driver string `yaml:"driver" env:"KESTREL_DB_DRIVER"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path" env:"KESTREL_SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host" env:"KESTREL_PG_HOST"`
	PostgresPort     int    `yaml:"postgres_port" env:"KESTREL_PG_PORT"`
	PostgresUser     string `yaml:"postgres_user" env:"KESTREL_PG_USER"`
	PostgresPassword string `yaml:"-" env:"KESTREL_PG_PASSWORD"`
	PostgresDB       string `yaml:"postgres_db" env:"KESTREL_PG_DATABASE"`
	PostgresSSLMode  string `yaml:"postgres_ssl_mode" env:"KESTREL_PG_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns" env:"KESTREL_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"KESTREL_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"KESTREL_DB_CONN_MAX_LIFETIME"`
}
