package commands

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"marlin/internal/app"
	"marlin/internal/config"
	"marlin/internal/logging"
)

var (
	datadir    string
	passphrase string
	relayURL   string
	backend    string
	logLevel   string

	cfg    config.Config
	appCtx *app.App
	log    logging.Logger
	logF   io.Closer
)

func Execute() error {
	root := &cobra.Command{
		Use:   "marlin",
		Short: "End-to-end encrypted group chat over a pub-sub relay",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.FromEnv()
			if err != nil {
				return err
			}
			// Flags override the environment.
			if datadir != "" {
				cfg.DataDir = datadir
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if backend != "" {
				cfg.Store = backend
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cfg.DataDir == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				cfg.DataDir = filepath.Join(dir, ".marlin")
			}
			if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
				return err
			}

			// Logs go to a file so they never tear the chat output.
			f, err := os.OpenFile(filepath.Join(cfg.DataDir, "marlin.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			logF = f
			log = logging.New(f, logging.ParseLevel(cfg.LogLevel), "marlin")

			appCtx, err = app.NewWire(cfg, nil)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if appCtx != nil {
				err = appCtx.Store.Close()
			}
			if logF != nil {
				logF.Close()
			}
			return err
		},
	}

	root.PersistentFlags().StringVar(&datadir, "datadir", "", "data dir (default ~/.marlin)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity keys")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&backend, "store", "", "store backend: sqlite or memory")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(initCmd(), fingerprintCmd(), runCmd())
	return root.Execute()
}
