package main

import (
	"log/slog"
	"net/http"
	"os"

	"marlin/internal/logging"
	"marlin/internal/relay"
)

func main() {
	addr := os.Getenv("MARLIN_RELAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log := logging.New(os.Stderr, slog.LevelInfo, "relayd")
	srv := relay.NewServer()

	log.Info("relay listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Error("serve", "err", err)
		os.Exit(1)
	}
}
