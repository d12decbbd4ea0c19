// Package journal records received nanoPubSub messages in a SQLite file so
// a listener's traffic can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	_ "modernc.org/sqlite"
)

// ErrInvalidLimit is returned by queries given a non-positive limit
var ErrInvalidLimit = errors.New("journal: limit must be positive")

// Entry is one recorded message
type Entry struct {
	ID         int64
	Kind       protocol.Kind
	ClientID   string
	Topic      string
	Body       string // empty for subscribe and unsubscribe
	Source     string // sender address, host:port
	ReceivedAt time.Time
}

// Message rebuilds the protocol message the entry was recorded from
func (e *Entry) Message() (protocol.Message, error) {
	switch e.Kind {
	case protocol.KindStandard:
		return protocol.NewStandard(e.ClientID, e.Topic, e.Body), nil
	case protocol.KindSubscribe:
		return protocol.NewSubscribe(e.ClientID, e.Topic), nil
	case protocol.KindUnsubscribe:
		return protocol.NewUnsubscribe(e.ClientID, e.Topic), nil
	default:
		return nil, fmt.Errorf("journal entry %d: %w", e.ID, protocol.ErrInvalidKind)
	}
}

// Journal wraps the SQLite connection
type Journal struct {
	conn *sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
}

// Open opens (creating if needed) the journal at path and initializes the
// schema.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// One writer at a time; the listener is the only producer.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	j := &Journal{conn: conn}
	if err := j.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) initSchema() error {
	_, err := j.conn.Exec(`
CREATE TABLE IF NOT EXISTS Message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind INTEGER NOT NULL,
	client_id TEXT NOT NULL,
	topic TEXT NOT NULL,
	body TEXT,
	source TEXT NOT NULL,
	received_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_message_topic ON Message(topic, received_at DESC);
CREATE INDEX IF NOT EXISTS idx_message_received ON Message(received_at);
`)
	return err
}

// Record stores msg as received from src at receivedAt and returns the new
// entry ID.
func (j *Journal) Record(ctx context.Context, msg protocol.Message, src net.Addr, receivedAt time.Time) (int64, error) {
	if _, err := protocol.Length(msg); err != nil {
		return 0, fmt.Errorf("failed to record message: %w", err)
	}

	var body sql.NullString
	if std, ok := msg.(*protocol.Standard); ok {
		body = sql.NullString{String: std.Body, Valid: true}
	}
	source := ""
	if src != nil {
		source = src.String()
	}

	result, err := j.conn.ExecContext(ctx, `
		INSERT INTO Message (kind, client_id, topic, body, source, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, int(msg.Kind()), msg.Sender(), msg.Subject(), body, source, receivedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to record message: %w", err)
	}
	return result.LastInsertId()
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, kind, client_id, topic, body, source, received_at
		FROM Message
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByTopic returns up to limit entries for topic, newest first
func (j *Journal) ByTopic(ctx context.Context, topic string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, kind, client_id, topic, body, source, received_at
		FROM Message
		WHERE topic = ?
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Prune deletes entries received before cutoff and returns how many went
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := j.conn.ExecContext(ctx, `
		DELETE FROM Message WHERE received_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry

	for rows.Next() {
		e := &Entry{}
		var kind int
		var body sql.NullString
		var receivedAt int64

		if err := rows.Scan(&e.ID, &kind, &e.ClientID, &e.Topic, &body, &e.Source, &receivedAt); err != nil {
			return nil, err
		}

		e.Kind = protocol.Kind(kind)
		if body.Valid {
			e.Body = body.String
		}
		e.ReceivedAt = time.UnixMilli(receivedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
