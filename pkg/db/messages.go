package db

import (
	"context"
	"fmt"
	"time"

	"github.com/urmzd/centrald/pkg/protocol"
)

// MessageFilter selects journal entries.
type MessageFilter struct {
	Since    time.Time
	Severity protocol.Severity // mask; zero selects all
	Source   string
	Limit    int
}

// MessageStore is the persistent message journal.
type MessageStore interface {
	Append(msg protocol.Message) error
	Recent(ctx context.Context, f MessageFilter) ([]protocol.Message, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Messages returns a MessageStore for this database.
func (db *DB) Messages() MessageStore {
	return &messageStore{db: db}
}

type messageStore struct {
	db *DB
}

const appendTimeout = 5 * time.Second

// Append stores one message. It has no context parameter so it can serve
// as a coordinator sink; the write is bounded by a fixed timeout.
func (s *messageStore) Append(msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (time_ms, source, severity, text) VALUES (?, ?, ?, ?)
	`, msg.Time.UnixMilli(), msg.Source, int(msg.Severity), msg.Text)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Recent returns matching messages, newest first.
func (s *messageStore) Recent(ctx context.Context, f MessageFilter) ([]protocol.Message, error) {
	var since int64
	if !f.Since.IsZero() {
		since = f.Since.UnixMilli()
	}
	query := `SELECT time_ms, source, severity, text FROM messages WHERE time_ms >= ?`
	args := []any{since}
	if f.Severity != 0 {
		query += ` AND (severity & ?) != 0`
		args = append(args, int(f.Severity))
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	query += ` ORDER BY time_ms DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.Message
	for rows.Next() {
		var ms int64
		var severity int
		var m protocol.Message
		if err := rows.Scan(&ms, &m.Source, &severity, &m.Text); err != nil {
			return nil, err
		}
		m.Time = time.UnixMilli(ms)
		m.Severity = protocol.Severity(severity)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune deletes messages older than before and returns how many went.
func (s *messageStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE time_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
