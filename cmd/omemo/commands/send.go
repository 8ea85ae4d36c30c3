package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

// send <buddy> <message>: encrypt and send a message to every trusted device.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <buddy> <message>",
		Short: "Encrypt and send a message to a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			id, err := a.Send(ctx, domain.Username(args[0]), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("sent %s\n", id)
			return nil
		},
	}
	return cmd
}
