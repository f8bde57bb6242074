package storage

import (
	"errors"
	"strings"

	logx "gamebridge/pkg/logx"
)

// DefaultPath is used when the file driver has no path configured.
const DefaultPath = "./data/registry.json"

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = DefaultPath
		}
		return newFileStore(path, log), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
