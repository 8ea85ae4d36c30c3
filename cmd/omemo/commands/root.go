package commands

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"omemo/internal/app"
	"omemo/internal/config"
	"omemo/internal/logging"
)

var (
	configPath string
	home       string
	passphrase string
	relayURL   string
	username   string
	verbose    bool

	cfg    *config.Config
	wire   *app.Wire
	logOut io.Closer
)

// Execute runs the omemo CLI.
func Execute() error {
	root := &cobra.Command{
		Use:           "omemo",
		Short:         "Multi-device end-to-end encrypted chat CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if username != "" {
				cfg.Username = username
			}
			if verbose {
				cfg.Logging.Level = logrus.DebugLevel.String()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closer, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			logOut = closer

			wire, err = app.NewWire(app.Options{Config: cfg, Logger: logger})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			if wire != nil {
				errs = append(errs, wire.Close())
			}
			if logOut != nil {
				errs = append(errs, logOut.Close())
			}
			return errors.Join(errs...)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file, .toml or .yaml (default ~/.omemo/config.toml)")
	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.omemo)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity keys")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "your username on the relay")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		publishCmd(),
		buddyCmd(),
		devicesCmd(),
		trustCmd(),
		verifyCmd(),
		startSessionCmd(),
		sendCmd(),
		recvCmd(),
		removeDeviceCmd(),
	)
	return root.Execute()
}

// openApp unlocks the identity and starts the coordinator. Callers close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase required (-p)")
	}
	return app.Open(wire, passphrase, notifierFor(cmd))
}

// commandContext bounds one command's network work.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := cfg.Coordinator.RequestTimeout.Std()
	if timeout <= 0 {
		timeout = time.Minute
	}
	return context.WithTimeout(cmd.Context(), 2*timeout)
}
