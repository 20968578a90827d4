package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"marlin/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them encrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if _, ok, err := appCtx.Store.LoadIdentity(passphrase); err == nil && ok {
				return fmt.Errorf("identity already exists in %s", cfg.DataDir)
			}
			id, err := crypto.GenerateIdentity()
			if err != nil {
				return err
			}
			if err := appCtx.Store.SaveIdentity(passphrase, id); err != nil {
				return err
			}
			pk := id.PublicKey()
			fmt.Fprintf(cmd.OutOrStdout(), "Identity created.\nPublic key:  %s\nFingerprint: %s\n", pk.Hex(), crypto.Fingerprint(pk[:]))
			return nil
		},
	}
}
