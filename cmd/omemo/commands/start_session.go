package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

// startSessionCmd fetches bundles for every device of a contact that has no
// session yet and runs X3DH against each.
func startSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-session <buddy>",
		Short: "Establish sessions with every device of a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			peer := domain.Username(args[0])
			ok, err := a.PrepareSessions(ctx, peer)
			if err != nil {
				return fmt.Errorf("starting session with %q: %w", peer, err)
			}
			if !ok {
				fmt.Printf("Some devices of %s have no session\n", peer)
				return nil
			}
			fmt.Printf("Sessions ready with every device of %s\n", peer)
			return nil
		},
	}
}
