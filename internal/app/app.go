package app

import "marlin/internal/domain"

// App bundles the wired dependencies the CLI commands share.
type App struct {
	Store domain.Store
	Relay domain.RelayClient
}
