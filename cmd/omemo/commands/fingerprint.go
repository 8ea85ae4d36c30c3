package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"omemo/internal/services/identity"
)

func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Identities.LoadIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Printf("Device:      %s\nFingerprint: %s\n", id.RegistrationID, identity.Fingerprint(id))
			return nil
		},
	}
	return cmd
}
