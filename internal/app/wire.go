package app

import (
	"fmt"
	"net/http"
	"path/filepath"

	"marlin/internal/config"
	"marlin/internal/domain"
	"marlin/internal/relay"
	"marlin/internal/store"
)

// NewWire constructs the dependency graph from cfg: the selected store
// backend and the relay client. The caller owns Store.Close.
func NewWire(cfg config.Config, httpClient *http.Client) (*App, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var st domain.Store
	switch cfg.Store {
	case "memory":
		st = store.NewMemory()
	case "sqlite":
		s, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "marlin.db"))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}

	return &App{
		Store: st,
		Relay: relay.NewHTTP(cfg.RelayURL, httpClient),
	}, nil
}
