package commands

import (
	"fmt"
	"log/slog"

	"github.com/ccollicutt/logstream/pkg/config"
	"github.com/ccollicutt/logstream/pkg/store"
	"github.com/ccollicutt/logstream/pkg/store/file"
	"github.com/ccollicutt/logstream/pkg/store/sqlite"
)

// openStore opens the configured session store.
func openStore(cfg *config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Type {
	case config.StoreTypeSQLite:
		st, err := sqlite.Open(sqlite.Config{
			Path:     cfg.Path,
			PoolSize: cfg.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreTypeFile:
		compression, err := file.ParseCompression(cfg.Compression)
		if err != nil {
			return nil, err
		}
		st, err := file.Open(file.Config{
			Dir:         cfg.Path,
			Compression: compression,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
