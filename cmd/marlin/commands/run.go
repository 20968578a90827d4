package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"marlin/internal/bus"
	"marlin/internal/engine"
	"marlin/internal/render"
	"marlin/internal/session"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			id, ok, err := appCtx.Store.LoadIdentity(passphrase)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no identity found; run \"marlin init\" first")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			b := bus.New(0, log)
			eng := engine.New(id, appCtx.Store, log)
			core := session.New(cfg, id, eng, appCtx.Store, appCtx.Relay, log, b.Submit)
			core.OnShutdown(cancel)

			session.StartInputProducer(ctx, cmd.InOrStdin(), b)
			session.StartFetchTicker(ctx, cfg.FetchInterval, b)
			go renderLoop(ctx, cmd.OutOrStdout(), core.Snapshots())

			out := cmd.OutOrStdout()
			pk := id.PublicKey()
			fmt.Fprintf(out, "marlin — you are %s\n", pk.Hex())
			fmt.Fprintln(out, "type a message, or /help for commands")

			core.Start()
			b.Run(ctx, core.Apply)
			return nil
		},
	}
}

// renderLoop prints notices and newly arrived messages from snapshots. It
// tracks how much of each group's history was already shown so replayed
// snapshots do not reprint.
func renderLoop(ctx context.Context, w io.Writer, snaps <-chan render.Snapshot) {
	var lastNotice string
	shown := make(map[string]int)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-snaps:
			if s.Notice != "" && s.Notice != lastNotice {
				fmt.Fprintf(w, "* %s\n", s.Notice)
				lastNotice = s.Notice
			}
			key := string(s.State.Active)
			if key == "" {
				continue
			}
			n := shown[key]
			if n > len(s.Messages) {
				n = len(s.Messages)
			}
			for _, m := range s.Messages[n:] {
				fmt.Fprintf(w, "<%s> %s\n", m.Sender.Hex()[:8], m.Content)
			}
			shown[key] = len(s.Messages)
		}
	}
}
