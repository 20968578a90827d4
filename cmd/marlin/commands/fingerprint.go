package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"marlin/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity public key and fingerprint",
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
			pk := id.PublicKey()
			fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\nFingerprint: %s\n", pk.Hex(), crypto.Fingerprint(pk[:]))
			return nil
		},
	}
}
