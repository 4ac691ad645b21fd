package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"polyterrain.ai/internal/persistence/tiledb"
)

type tileStore struct {
	db   *tiledb.TileDB
	path string
}

func (s *tileStore) Close() error { return s.db.Close() }

// openTileStore opens the tile cache selected by POLYTERRAIN_TILE_BACKEND.
// A nil store means chunks are regenerated on every request.
func openTileStore(dataDir string, disableDB bool, logger *log.Logger) (*tileStore, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("POLYTERRAIN_TILE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		path := filepath.Join(dataDir, "tiles", "tiles.sqlite")
		db, err := tiledb.Open(path)
		if err != nil {
			return nil, err
		}
		logger.Printf("tile cache: %s", path)
		return &tileStore{db: db, path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported POLYTERRAIN_TILE_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
