package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// RuleStore holds the device policy of a profile: the devices that gate
// the weather verdict and the block-on-priority list.
type RuleStore interface {
	RequiredDevices(ctx context.Context, profileID int64) ([]string, error)
	SetRequiredDevices(ctx context.Context, profileID int64, names []string) error
	Blocks(ctx context.Context, profileID int64) (map[string][]string, error)
	SetBlocks(ctx context.Context, profileID int64, blocks map[string][]string) error
}

// Rules returns a RuleStore for this database.
func (db *DB) Rules() RuleStore {
	return &ruleStore{db: db}
}

type ruleStore struct {
	db *DB
}

func (s *ruleStore) RequiredDevices(ctx context.Context, profileID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM required_devices WHERE profile_id = ? ORDER BY name
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *ruleStore) SetRequiredDevices(ctx context.Context, profileID int64, names []string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM required_devices WHERE profile_id = ?`, profileID); err != nil {
			return err
		}
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO required_devices (profile_id, name) VALUES (?, ?)
			`, profileID, name); err != nil {
				return fmt.Errorf("failed to add required device %s: %w", name, err)
			}
		}
		return nil
	})
}

// Blocks returns, per device, the devices it is blocked by. A device with
// an empty list is blocked by none; devices absent from the map are
// blocked by all.
func (s *ruleStore) Blocks(ctx context.Context, profileID int64) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device, blocked_by FROM device_blocks WHERE profile_id = ? ORDER BY device, blocked_by
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	blocks := make(map[string][]string)
	for rows.Next() {
		var device, by string
		if err := rows.Scan(&device, &by); err != nil {
			return nil, err
		}
		list := blocks[device]
		if by != "" {
			list = append(list, by)
		}
		if list == nil {
			list = []string{}
		}
		blocks[device] = list
	}
	return blocks, rows.Err()
}

func (s *ruleStore) SetBlocks(ctx context.Context, profileID int64, blocks map[string][]string) error {
	devices := make([]string, 0, len(blocks))
	for d := range blocks {
		devices = append(devices, d)
	}
	slices.Sort(devices)

	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM device_blocks WHERE profile_id = ?`, profileID); err != nil {
			return err
		}
		for _, d := range devices {
			by := blocks[d]
			if len(by) == 0 {
				// keep the entry so the device stays unblocked
				by = []string{""}
			}
			for _, b := range by {
				if _, err := tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO device_blocks (profile_id, device, blocked_by) VALUES (?, ?, ?)
				`, profileID, d, b); err != nil {
					return fmt.Errorf("failed to add block %s by %s: %w", d, b, err)
				}
			}
		}
		return nil
	})
}
