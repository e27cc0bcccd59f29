package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var ErrEndpointNotFound = errors.New("endpoint not found")

// Endpoint kinds.
const (
	EndpointProtocol = "protocol"
	EndpointAPI      = "api"
)

// Default listen ports.
const (
	DefaultProtocolPort = 617
	DefaultAPIPort      = 8080
)

// Endpoint is a listen address of the coordinator.
type Endpoint struct {
	ID        int64
	ProfileID int64
	Kind      string
	Host      string
	Port      int
	CreatedAt time.Time
}

// Address returns the listen address (host:port).
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// EndpointStore provides listen address CRUD operations.
type EndpointStore interface {
	Get(ctx context.Context, profileID int64, kind string) (*Endpoint, error)
	List(ctx context.Context, profileID int64) ([]*Endpoint, error)
	Put(ctx context.Context, e *Endpoint) error
	Delete(ctx context.Context, profileID int64, kind string) error
}

// Endpoints returns an EndpointStore for this database.
func (db *DB) Endpoints() EndpointStore {
	return &endpointStore{db: db}
}

type endpointStore struct {
	db *DB
}

func (s *endpointStore) Get(ctx context.Context, profileID int64, kind string) (*Endpoint, error) {
	e := &Endpoint{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, kind, host, port, created_at
		FROM endpoints WHERE profile_id = ? AND kind = ?
	`, profileID, kind).Scan(&e.ID, &e.ProfileID, &e.Kind, &e.Host, &e.Port, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return e, nil
}

func (s *endpointStore) List(ctx context.Context, profileID int64) ([]*Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, kind, host, port, created_at
		FROM endpoints WHERE profile_id = ? ORDER BY kind
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Endpoint
	for rows.Next() {
		e := &Endpoint{}
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Kind, &e.Host, &e.Port, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Put creates or replaces the endpoint of e.Kind for e.ProfileID.
func (s *endpointStore) Put(ctx context.Context, e *Endpoint) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO endpoints (profile_id, kind, host, port)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (profile_id, kind) DO UPDATE SET host = excluded.host, port = excluded.port
	`, e.ProfileID, e.Kind, e.Host, e.Port)
	if err != nil {
		return fmt.Errorf("failed to store %s endpoint: %w", e.Kind, err)
	}
	if id, err := result.LastInsertId(); err == nil && id != 0 {
		e.ID = id
	}
	return nil
}

func (s *endpointStore) Delete(ctx context.Context, profileID int64, kind string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE profile_id = ? AND kind = ?`, profileID, kind)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}
