package backend

import (
	"time"

	"spese-report/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL     string
	MaxConns        int32
	MaxConnIdleTime time.Duration

	// Memory specific; empty starts with no data
	MemorySeedFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(c *config.Config) Config {
	return Config{
		Type:            BackendType(c.DataBackend),
		SQLiteDBPath:    c.SQLiteDBPath,
		DatabaseURL:     c.DatabaseURL,
		MaxConns:        10,
		MaxConnIdleTime: 5 * time.Minute,
		MemorySeedFile:  c.MemorySeedFile,
	}
}
