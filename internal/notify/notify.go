// Package notify implements domain.Notifier for terminals and logs.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"omemo/internal/domain"
)

// NameFunc resolves a buddy id to a display name.
type NameFunc func(buddyID string) (domain.Username, error)

// Writer prints one line per message.
type Writer struct {
	mu   sync.Mutex
	out  io.Writer
	name NameFunc
	log  *logrus.Entry
}

// Compile-time assertion that Writer satisfies domain.Notifier.
var _ domain.Notifier = (*Writer)(nil)

// NewWriter returns a notifier writing to out. name may be nil, in which
// case the buddy id is printed.
func NewWriter(out io.Writer, name NameFunc, log *logrus.Entry) *Writer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Writer{out: out, name: name, log: log.WithField("component", "notify")}
}

// Notify writes "[15:04:05] name: text".
func (w *Writer) Notify(m domain.Message) {
	from := m.BuddyID
	if w.name != nil {
		if n, err := w.name(m.BuddyID); err == nil && n != "" {
			from = n.String()
		} else if err != nil {
			w.log.WithError(err).WithField("buddy", m.BuddyID).Debug("resolve buddy name")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), from, m.Text); err != nil {
		w.log.WithError(err).Warn("write notification")
	}
}

// Log records messages as log entries without their text.
type Log struct {
	log *logrus.Entry
}

// NewLog returns a notifier that logs at info level.
func NewLog(log *logrus.Entry) *Log {
	return &Log{log: log.WithField("component", "notify")}
}

// Notify implements domain.Notifier.
func (l *Log) Notify(m domain.Message) {
	l.log.WithFields(logrus.Fields{
		"buddy":      m.BuddyID,
		"message_id": m.MessageID,
		"security":   m.Security,
	}).Info("new message")
}

// Multi fans a message out to several notifiers.
type Multi []domain.Notifier

// Notify implements domain.Notifier.
func (m Multi) Notify(msg domain.Message) {
	for _, n := range m {
		n.Notify(msg)
	}
}
