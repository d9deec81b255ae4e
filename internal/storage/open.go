package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/doorgate/internal/config"
)

// Open connects to the configured relational store and applies its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := NewPostgresStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenImages returns MinIO when an endpoint is configured and the local file
// store otherwise. dir is empty unless the file store is used.
func OpenImages(ctx context.Context, m config.MinIOConfig, f config.FilesConfig) (store ImageStore, dir string, err error) {
	if m.Endpoint == "" {
		fs, err := NewFileStore(f.Dir, f.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return fs, fs.Dir(), nil
	}

	ms, err := NewMinIOStore(m)
	if err != nil {
		return nil, "", err
	}
	if err := ms.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}
	return ms, "", nil
}
