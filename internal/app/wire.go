package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"omemo/internal/config"
	"omemo/internal/domain"
	"omemo/internal/relay"
	"omemo/internal/services/identity"
	"omemo/internal/store"
)

// Wire bundles the stores and clients that need no unlocked identity.
type Wire struct {
	Config        *config.Config
	Log           *logrus.Logger
	Identities    *identity.Service
	IdentityStore domain.IdentityStore
	PreKeys       domain.PreKeyStore
	Conversations domain.ConversationStore
	DB            *store.DB
	Relay         *relay.HTTP
	HTTP          *http.Client
}

// NewWire constructs the dependency graph from opts.
func NewWire(opts Options) (*Wire, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	// File-based key material
	identityStore := store.NewIdentityFileStore(cfg.Home)
	prekeyStore := store.NewPreKeyFileStore(cfg.Home)
	convStore := store.NewConversationFileStore(cfg.Home)

	// Records
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	// Ensure an HTTP client is available for outbound calls
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Relay.HTTPTimeout.Std()}
	}

	var rc *relay.HTTP
	if cfg.RelayURL != "" {
		rc = relay.NewHTTP(cfg.RelayURL, httpClient)
	}

	return &Wire{
		Config:        cfg,
		Log:           logger,
		Identities:    identity.New(identityStore),
		IdentityStore: identityStore,
		PreKeys:       prekeyStore,
		Conversations: convStore,
		DB:            db,
		Relay:         rc,
		HTTP:          httpClient,
	}, nil
}

// Close releases the database.
func (w *Wire) Close() error {
	return w.DB.Close()
}
