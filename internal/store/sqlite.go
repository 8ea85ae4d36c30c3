package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"omemo/internal/domain"
)

// Schema for the account, buddy, device and message records.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id          TEXT PRIMARY KEY,
    username    TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS buddies (
    id              TEXT PRIMARY KEY,
    account_id      TEXT NOT NULL REFERENCES accounts(id),
    username        TEXT NOT NULL,
    last_message_at INTEGER NOT NULL DEFAULT 0,
    UNIQUE (account_id, username)
);

CREATE TABLE IF NOT EXISTS devices (
    parent_key          TEXT NOT NULL,
    parent_collection   TEXT NOT NULL,
    device_id           INTEGER NOT NULL,
    trust               INTEGER NOT NULL,
    last_seen           INTEGER NOT NULL DEFAULT 0,
    identity_key        BLOB,
    PRIMARY KEY (parent_key, parent_collection, device_id)
);

CREATE TABLE IF NOT EXISTS messages (
    id          TEXT PRIMARY KEY,
    buddy_id    TEXT NOT NULL REFERENCES buddies(id),
    incoming    INTEGER NOT NULL,
    text        TEXT NOT NULL,
    security    TEXT NOT NULL,
    message_id  TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    delivered   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_buddy ON messages(buddy_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
`

// DB is the SQLite record store.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serialises transactions; they are short.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// View runs fn in a transaction that is always rolled back.
func (s *DB) View(fn func(tx domain.ReadTx) error) error {
	t, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer t.Rollback()
	return fn(&tx{t: t})
}

// Update runs fn in a transaction committed when fn returns nil.
func (s *DB) Update(fn func(tx domain.WriteTx) error) error {
	t, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer t.Rollback()

	if err := fn(&tx{t: t}); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type tx struct {
	t *sql.Tx
}

func (x *tx) Account(id string) (domain.Account, bool, error) {
	var a domain.Account
	err := x.t.QueryRow(`SELECT id, username FROM accounts WHERE id = ?`, id).Scan(&a.ID, &a.Username)
	return a, found(err), notFound(err, "get account")
}

func (x *tx) AccountByUsername(username domain.Username) (domain.Account, bool, error) {
	var a domain.Account
	err := x.t.QueryRow(`SELECT id, username FROM accounts WHERE username = ?`, username).Scan(&a.ID, &a.Username)
	return a, found(err), notFound(err, "get account by username")
}

func (x *tx) SaveAccount(a domain.Account) error {
	_, err := x.t.Exec(`
		INSERT INTO accounts (id, username) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username`,
		a.ID, a.Username,
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (x *tx) Buddy(id string) (domain.Buddy, bool, error) {
	row := x.t.QueryRow(`
		SELECT id, account_id, username, last_message_at
		FROM buddies WHERE id = ?`, id)
	b, err := scanBuddy(row)
	return b, found(err), notFound(err, "get buddy")
}

func (x *tx) BuddyByUsername(accountID string, username domain.Username) (domain.Buddy, bool, error) {
	row := x.t.QueryRow(`
		SELECT id, account_id, username, last_message_at
		FROM buddies WHERE account_id = ? AND username = ?`, accountID, username)
	b, err := scanBuddy(row)
	return b, found(err), notFound(err, "get buddy by username")
}

func (x *tx) Buddies(accountID string) ([]domain.Buddy, error) {
	rows, err := x.t.Query(`
		SELECT id, account_id, username, last_message_at
		FROM buddies WHERE account_id = ? ORDER BY username`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list buddies: %w", err)
	}
	defer rows.Close()

	var out []domain.Buddy
	for rows.Next() {
		b, err := scanBuddy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buddy: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (x *tx) SaveBuddy(b domain.Buddy) error {
	_, err := x.t.Exec(`
		INSERT INTO buddies (id, account_id, username, last_message_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			username = excluded.username,
			last_message_at = excluded.last_message_at`,
		b.ID, b.AccountID, b.Username, unixNano(b.LastMessageAt),
	)
	if err != nil {
		return fmt.Errorf("save buddy: %w", err)
	}
	return nil
}

func (x *tx) Username(key string, collection domain.Collection) (domain.Username, bool, error) {
	var q string
	switch collection {
	case domain.CollectionAccount:
		q = `SELECT username FROM accounts WHERE id = ?`
	case domain.CollectionBuddy:
		q = `SELECT username FROM buddies WHERE id = ?`
	default:
		return "", false, fmt.Errorf("unknown collection %q", collection)
	}
	var u domain.Username
	err := x.t.QueryRow(q, key).Scan(&u)
	return u, found(err), notFound(err, "get username")
}

func (x *tx) Devices(parentKey string, collection domain.Collection) ([]domain.Device, error) {
	rows, err := x.t.Query(`
		SELECT parent_key, parent_collection, device_id, trust, last_seen, identity_key
		FROM devices WHERE parent_key = ? AND parent_collection = ?
		ORDER BY device_id`, parentKey, collection)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (x *tx) Device(parentKey string, collection domain.Collection, id domain.DeviceID) (domain.Device, bool, error) {
	row := x.t.QueryRow(`
		SELECT parent_key, parent_collection, device_id, trust, last_seen, identity_key
		FROM devices WHERE parent_key = ? AND parent_collection = ? AND device_id = ?`,
		parentKey, collection, id)
	d, err := scanDevice(row)
	return d, found(err), notFound(err, "get device")
}

func (x *tx) SaveDevice(d domain.Device) error {
	_, err := x.t.Exec(`
		INSERT INTO devices (parent_key, parent_collection, device_id, trust, last_seen, identity_key)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(parent_key, parent_collection, device_id) DO UPDATE SET
			trust = excluded.trust,
			last_seen = excluded.last_seen,
			identity_key = excluded.identity_key`,
		d.ParentKey, d.ParentCollection, d.ID, int(d.Trust), unixNano(d.LastSeen), d.IdentityKey,
	)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

func (x *tx) RemoveDevice(parentKey string, collection domain.Collection, id domain.DeviceID) error {
	_, err := x.t.Exec(`
		DELETE FROM devices WHERE parent_key = ? AND parent_collection = ? AND device_id = ?`,
		parentKey, collection, id)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	return nil
}

func (x *tx) Messages(buddyID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	// Newest last, but limit keeps the most recent rows.
	rows, err := x.t.Query(`
		SELECT id, buddy_id, incoming, text, security, message_id, created_at, delivered FROM (
			SELECT * FROM messages WHERE buddy_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC`, buddyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.BuddyID, &m.Incoming, &m.Text, &m.Security, &m.MessageID, &created, &m.Delivered); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromUnixNano(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (x *tx) SaveMessage(m domain.Message) error {
	_, err := x.t.Exec(`
		INSERT INTO messages (id, buddy_id, incoming, text, security, message_id, created_at, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET delivered = excluded.delivered`,
		m.ID, m.BuddyID, m.Incoming, m.Text, m.Security, m.MessageID, unixNano(m.CreatedAt), m.Delivered,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// MarkDelivered flags the outgoing message to buddyID with messageID as
// delivered and reports whether any row matched.
func (x *tx) MarkDelivered(buddyID, messageID string) (bool, error) {
	res, err := x.t.Exec(`
		UPDATE messages SET delivered = 1
		WHERE buddy_id = ? AND message_id = ? AND incoming = 0`, buddyID, messageID)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuddy(s scanner) (domain.Buddy, error) {
	var (
		b    domain.Buddy
		last int64
	)
	if err := s.Scan(&b.ID, &b.AccountID, &b.Username, &last); err != nil {
		return domain.Buddy{}, err
	}
	b.LastMessageAt = fromUnixNano(last)
	return b, nil
}

func scanDevice(s scanner) (domain.Device, error) {
	var (
		d     domain.Device
		trust int
		seen  int64
	)
	if err := s.Scan(&d.ParentKey, &d.ParentCollection, &d.ID, &trust, &seen, &d.IdentityKey); err != nil {
		return domain.Device{}, err
	}
	d.Trust = domain.TrustLevel(trust)
	d.LastSeen = fromUnixNano(seen)
	return d, nil
}

// found reports whether a single-row lookup produced a row.
func found(err error) bool { return err == nil }

// notFound maps sql.ErrNoRows to nil and wraps anything else.
func notFound(err error, op string) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Compile-time assertions.
var (
	_ domain.Store   = (*DB)(nil)
	_ domain.WriteTx = (*tx)(nil)
)
