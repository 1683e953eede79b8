package backend

import (
	"context"
	"fmt"

	"spese-report/internal/log"
	"spese-report/internal/storage"
	"spese-report/internal/storage/memory"
	"spese-report/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the store named by config.Type. The caller owns the
// result and must Close it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (Backend, error) {
	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("invalid backend type: %q", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (Backend, error) {
	store, err := memory.NewFromFile(ctx, config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)
	return store, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (Backend, error) {
	if config.SQLiteDBPath == "" {
		return nil, fmt.Errorf("sqlite backend needs a database path")
	}
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (Backend, error) {
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres backend needs a database URL")
	}
	store, err := postgres.Connect(ctx, config.DatabaseURL, postgres.PoolConfig{
		MaxConns:        config.MaxConns,
		MaxConnIdleTime: config.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	f.logger.Info("Initialized postgres backend", "max_conns", config.MaxConns)
	return store, nil
}

// Open is CreateBackend on a default factory.
func Open(ctx context.Context, config Config, logger *log.Logger) (Backend, error) {
	return NewFactory(logger).CreateBackend(ctx, config)
}
