package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is one observatory configuration: site coordinates, the
// horizons driving the day/night phases and the coordinator policy.
type Profile struct {
	ID             int64
	Name           string
	Longitude      float64
	Latitude       float64
	NightHorizon   float64
	DayHorizon     float64
	EveningTime    time.Duration
	MorningTime    time.Duration
	MorningOff     bool
	MorningStandby bool
	RebootOn       bool
	InfoTimeout    time.Duration
	AuthPenalty    time.Duration
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultProfile returns a profile with the stock observatory settings.
func DefaultProfile(name string) *Profile {
	return &Profile{
		Name:           name,
		NightHorizon:   -10,
		DayHorizon:     0,
		EveningTime:    2 * time.Hour,
		MorningTime:    30 * time.Minute,
		MorningOff:     true,
		MorningStandby: true,
		InfoTimeout:    30 * time.Second,
		AuthPenalty:    5 * time.Second,
	}
}

// ProfileStore provides profile CRUD operations.
type ProfileStore interface {
	Get(ctx context.Context, id int64) (*Profile, error)
	GetByName(ctx context.Context, name string) (*Profile, error)
	GetActive(ctx context.Context) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile) error
	SetActive(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Profiles returns a ProfileStore for this database.
func (db *DB) Profiles() ProfileStore {
	return &profileStore{db: db}
}

type profileStore struct {
	db *DB
}

const profileColumns = `id, name, longitude, latitude, night_horizon, day_horizon,
	evening_time, morning_time, morning_off, morning_standby, reboot_on,
	info_timeout_ms, auth_penalty_ms, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var evening, morning, infoMS, penaltyMS int64
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Longitude, &p.Latitude, &p.NightHorizon, &p.DayHorizon,
		&evening, &morning, &p.MorningOff, &p.MorningStandby, &p.RebootOn,
		&infoMS, &penaltyMS, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.EveningTime = time.Duration(evening) * time.Second
	p.MorningTime = time.Duration(morning) * time.Second
	p.InfoTimeout = time.Duration(infoMS) * time.Millisecond
	p.AuthPenalty = time.Duration(penaltyMS) * time.Millisecond
	p.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	p.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return p, nil
}

func (s *profileStore) getOne(ctx context.Context, where string, args ...any) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE `+where, args...)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	return p, err
}

func (s *profileStore) Get(ctx context.Context, id int64) (*Profile, error) {
	return s.getOne(ctx, `id = ?`, id)
}

func (s *profileStore) GetByName(ctx context.Context, name string) (*Profile, error) {
	return s.getOne(ctx, `name = ?`, name)
}

func (s *profileStore) GetActive(ctx context.Context) (*Profile, error) {
	return s.getOne(ctx, `is_active = 1 LIMIT 1`)
}

func (s *profileStore) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *profileStore) Create(ctx context.Context, p *Profile) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (name, longitude, latitude, night_horizon, day_horizon,
			evening_time, morning_time, morning_off, morning_standby, reboot_on,
			info_timeout_ms, auth_penalty_ms, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Longitude, p.Latitude, p.NightHorizon, p.DayHorizon,
		int64(p.EveningTime/time.Second), int64(p.MorningTime/time.Second),
		p.MorningOff, p.MorningStandby, p.RebootOn,
		p.InfoTimeout.Milliseconds(), p.AuthPenalty.Milliseconds(), p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *profileStore) Update(ctx context.Context, p *Profile) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET name = ?, longitude = ?, latitude = ?, night_horizon = ?, day_horizon = ?,
			evening_time = ?, morning_time = ?, morning_off = ?, morning_standby = ?, reboot_on = ?,
			info_timeout_ms = ?, auth_penalty_ms = ?, updated_at = datetime('now')
		WHERE id = ?
	`, p.Name, p.Longitude, p.Latitude, p.NightHorizon, p.DayHorizon,
		int64(p.EveningTime/time.Second), int64(p.MorningTime/time.Second),
		p.MorningOff, p.MorningStandby, p.RebootOn,
		p.InfoTimeout.Milliseconds(), p.AuthPenalty.Milliseconds(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *profileStore) SetActive(ctx context.Context, id int64) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 0`); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrProfileNotFound
		}
		return nil
	})
}

func (s *profileStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}
