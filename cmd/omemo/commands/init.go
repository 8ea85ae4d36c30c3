package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"omemo/internal/config"
)

func initCmd() *cobra.Command {
	var writeConfig bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			id, fp, err := wire.Identities.GenerateIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Printf("Identity created.\nDevice:      %s\nFingerprint: %s\n", id.RegistrationID, fp)

			if !writeConfig {
				return nil
			}
			path := configPath
			if path == "" {
				path = cfg.Path()
			}
			if _, err := os.Stat(path); err == nil {
				return nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&writeConfig, "write-config", true, "save the effective settings when no config file exists")
	return cmd
}
