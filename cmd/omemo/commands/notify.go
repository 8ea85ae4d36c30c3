package commands

import (
	"github.com/spf13/cobra"

	"omemo/internal/domain"
	"omemo/internal/notify"
)

// notifierFor prints incoming messages to the command's output and logs them.
// Names are resolved straight from the database since the app is not open yet.
func notifierFor(cmd *cobra.Command) domain.Notifier {
	log := wire.Log.WithField("cmd", cmd.Name())
	name := func(buddyID string) (domain.Username, error) {
		var u domain.Username
		err := wire.DB.View(func(tx domain.ReadTx) error {
			b, ok, err := tx.Buddy(buddyID)
			if err != nil || !ok {
				return err
			}
			u = b.Username
			return nil
		})
		return u, err
	}
	return notify.Multi{
		notify.NewWriter(cmd.OutOrStdout(), name, log),
		notify.NewLog(log),
	}
}
