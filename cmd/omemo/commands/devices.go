package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

func devicesCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "devices [username]",
		Short: "List the known devices of a contact, or your own",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			name := a.Account.Username
			if len(args) == 1 {
				name = domain.Username(args[0])
			}
			if refresh {
				ctx, cancel := commandContext(cmd)
				defer cancel()
				if err := a.RefreshDevices(ctx, name); err != nil {
					return err
				}
			}

			devices, err := a.Devices(name)
			if err != nil {
				return err
			}
			for _, d := range devices {
				session, err := a.Coordinator.IsSessionValid(name, d.ID)
				if err != nil {
					return err
				}
				marker := " "
				if name == a.Account.Username && d.ID == a.Identity.RegistrationID {
					marker = "*"
				}
				seen := "never"
				if !d.LastSeen.IsZero() {
					seen = d.LastSeen.Local().Format(time.DateTime)
				}
				fmt.Printf("%s %-12s %-14s session=%-5t last-seen=%s\n", marker, d.ID, d.Trust, session, seen)
				if len(d.IdentityKey) > 0 {
					fmt.Printf("  %s\n", crypto.Fingerprint(d.IdentityKey))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the device list from the relay first")
	return cmd
}

var trustLevels = map[string]domain.TrustLevel{
	"trusted":   domain.TrustTrustedUser,
	"untrusted": domain.TrustUntrusted,
}

func trustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust <username> <device> <trusted|untrusted>",
		Short: "Set the trust level of a device",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseDeviceID(args[1])
			if err != nil {
				return err
			}
			level, ok := trustLevels[strings.ToLower(args[2])]
			if !ok {
				return fmt.Errorf("unknown trust level %q", args[2])
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.SetTrust(domain.Username(args[0]), id, level); err != nil {
				return err
			}
			fmt.Printf("Device %s of %s is now %s\n", id, args[0], level)
			return nil
		},
	}
}

func removeDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-device <device>...",
		Short: "Remove your own devices from the published device list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]domain.DeviceID, 0, len(args))
			for _, arg := range args {
				id, err := domain.ParseDeviceID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := a.RemoveDevices(ctx, ids); err != nil {
				return err
			}
			fmt.Printf("Removed %d device(s)\n", len(ids))
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <username> <device> <fingerprint>...",
		Short: "Trust a device after comparing its fingerprint out of band",
		Long: "Compare the fingerprint the contact reads out from their device with the one\n" +
			"recorded here, and mark the device trusted when they match. The fingerprint\n" +
			"may be given with or without spaces.",
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseDeviceID(args[1])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.VerifyDevice(domain.Username(args[0]), id, strings.Join(args[2:], " ")); err != nil {
				return err
			}
			fmt.Printf("Device %s of %s verified and trusted\n", id, args[0])
			return nil
		},
	}
}
