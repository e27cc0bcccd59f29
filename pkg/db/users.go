package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

// User is a client login allowed to command the coordinator.
type User struct {
	Login     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore manages client credentials. Passwords are stored as bcrypt
// hashes.
type UserStore interface {
	List(ctx context.Context) ([]*User, error)
	SetPassword(ctx context.Context, login, password string) error
	Delete(ctx context.Context, login string) error
	Authenticate(ctx context.Context, login, password string) (bool, error)
}

// Users returns a UserStore for this database.
func (db *DB) Users() UserStore {
	return &userStore{db: db}
}

type userStore struct {
	db *DB
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT login, created_at, updated_at FROM users ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		u := &User{}
		var createdAt, updatedAt string
		if err := rows.Scan(&u.Login, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		u.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetPassword creates the user or replaces its password.
func (s *userStore) SetPassword(ctx context.Context, login, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (login, password_hash) VALUES (?, ?)
		ON CONFLICT (login) DO UPDATE SET password_hash = excluded.password_hash, updated_at = datetime('now')
	`, login, string(hash))
	if err != nil {
		return fmt.Errorf("failed to store user %s: %w", login, err)
	}
	return nil
}

func (s *userStore) Delete(ctx context.Context, login string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE login = ?`, login)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Authenticate reports whether password matches the stored hash. Unknown
// logins are a mismatch, not an error.
func (s *userStore) Authenticate(ctx context.Context, login, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE login = ?`, login).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up user %s: %w", login, err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
