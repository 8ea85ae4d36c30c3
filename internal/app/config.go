package app

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"omemo/internal/config"
)

// Options holds runtime wiring options for building the app.
type Options struct {
	Config *config.Config // loaded settings; Home and RelayURL come from here
	HTTP   *http.Client   // optional; built from Relay.HTTPTimeout when nil
	Logger *logrus.Logger // optional; discards output when nil
}
