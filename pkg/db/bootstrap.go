package db

import (
	"context"
	"fmt"
)

// Bootstrap creates the default profile and its listen addresses on an
// empty database. It runs after migrations.
func (db *DB) Bootstrap(ctx context.Context) error {
	needs, err := db.NeedsBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to check profiles: %w", err)
	}
	if !needs {
		return nil
	}

	p := DefaultProfile("default")
	p.IsActive = true
	if err := db.Profiles().Create(ctx, p); err != nil {
		return fmt.Errorf("failed to create default profile: %w", err)
	}

	for _, e := range []*Endpoint{
		{ProfileID: p.ID, Kind: EndpointProtocol, Host: "0.0.0.0", Port: DefaultProtocolPort},
		{ProfileID: p.ID, Kind: EndpointAPI, Host: "0.0.0.0", Port: DefaultAPIPort},
	} {
		if err := db.Endpoints().Put(ctx, e); err != nil {
			return fmt.Errorf("failed to create default %s endpoint: %w", e.Kind, err)
		}
	}
	return nil
}

// NeedsBootstrap returns true if the database needs initial setup.
func (db *DB) NeedsBootstrap(ctx context.Context) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
