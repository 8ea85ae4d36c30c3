package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

func buddyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buddy",
		Short: "Manage contacts",
	}
	cmd.AddCommand(buddyAddCmd(), buddyListCmd())
	return cmd
}

func buddyAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <username>",
		Short: "Add a contact and fetch its device list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			name := domain.Username(args[0])
			if _, err := a.AddBuddy(name); err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := a.RefreshDevices(ctx, name); err != nil {
				return err
			}
			ids, err := a.Coordinator.DeviceIDs(name)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s with %d device(s)\n", name, len(ids))
			return nil
		},
	}
}

func buddyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var buddies []domain.Buddy
			err = a.DB.View(func(tx domain.ReadTx) error {
				buddies, err = tx.Buddies(a.Account.ID)
				return err
			})
			if err != nil {
				return err
			}
			for _, b := range buddies {
				ok, err := a.Coordinator.BuddySupportsOMEMO(b.ID)
				if err != nil {
					return err
				}
				status := "no trusted devices"
				if ok {
					status = "omemo"
				}
				fmt.Printf("%-24s %s\n", b.Username, status)
			}
			return nil
		},
	}
}
