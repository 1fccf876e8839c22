package store

import (
	"fmt"
	"path/filepath"

	"github.com/geowidget/tilefetch/pkg/logger"
)

type Config struct {
	// Backend selects the store implementation.
	Backend string
	// Dir is the base directory for file-backed stores.
	Dir string
	// Source names the tile source; each source gets its own database
	// file or directory.
	Source string
	Redis  RedisConfig
}

// New creates a tile store for the configured backend.
func New(cfg Config, l logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		path := filepath.Join(cfg.Dir, cfg.Source+".db")
		l.Info("using sqlite tile store", "path", path)
		return NewSQLiteStore(path, l), nil
	case "memory":
		l.Info("using in-memory tile store")
		return NewMemoryStore(), nil
	case "filesystem":
		root := filepath.Join(cfg.Dir, cfg.Source)
		l.Info("using filesystem tile store", "root", root)
		return NewFilesystemStore(root), nil
	case "redis":
		l.Info("using redis tile store", "addr", cfg.Redis.Addr)
		return NewRedisStore(cfg.Redis, l), nil
	case "disabled":
		l.Info("tile store disabled")
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s (supported: sqlite, memory, filesystem, redis, disabled)", cfg.Backend)
	}
}
