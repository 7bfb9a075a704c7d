package storage

import (
	"errors"
	"strings"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/internal/storage/sqlite"
)

// ErrDBPathNotConfigured indicates config.DBPath is empty.
var ErrDBPathNotConfigured = errors.New("db_path is not configured")

// OpenStore opens the run history database named by cfg.
func OpenStore(cfg *config.Config) (*sqlite.Store, error) {
	if cfg == nil || strings.TrimSpace(cfg.DBPath) == "" {
		return nil, ErrDBPathNotConfigured
	}
	return sqlite.Open(cfg.DBPath)
}
