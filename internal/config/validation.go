package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxPreKeyCount bounds how many one-time pre-keys a bundle may carry.
const MaxPreKeyCount = 1000

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Home == "" {
		add("home", "required")
	}
	if c.RelayURL != "" {
		u, err := url.Parse(c.RelayURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("relay_url", "must be an http(s) URL, got %q", c.RelayURL)
		}
	}

	cc := c.Coordinator
	if cc.PreKeyCount < 1 || cc.PreKeyCount > MaxPreKeyCount {
		add("coordinator.prekey_count", "must be between 1 and %d, got %d", MaxPreKeyCount, cc.PreKeyCount)
	}
	if cc.RequestTimeout < 0 {
		add("coordinator.request_timeout", "must not be negative")
	}
	if cc.ExpiryInterval <= 0 {
		add("coordinator.expiry_interval", "must be positive")
	}

	rc := c.Relay
	if rc.Listen == "" {
		add("relay.listen", "required")
	}
	if rc.PollLimit < 1 {
		add("relay.poll_limit", "must be positive")
	}
	if rc.PollInterval <= 0 {
		add("relay.poll_interval", "must be positive")
	}
	if rc.HTTPTimeout < 0 {
		add("relay.http_timeout", "must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
