package storage

import (
	"context"
	"fmt"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/config"
)

// NewStore opens the backend selected by STORAGE_BACKEND.
func NewStore(ctx context.Context, cfg *config.Config, logger internal.Logger) (Store, error) {
	switch cfg.DBType {
	case "memory":
		return NewMemoryStorage(logger), nil
	case "file":
		return NewFileStorage(cfg.DataDir, logger)
	case "mongo":
		return NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	case "postgres":
		return NewPostgresStorage(ctx, cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.DBType)
	}
}
