package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish your bundle and device list to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := a.Publish(ctx); err != nil {
				return err
			}
			fmt.Printf("Published device %s for %s\n", a.Identity.RegistrationID, a.Account.Username)
			return nil
		},
	}
}
