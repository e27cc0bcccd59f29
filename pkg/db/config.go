package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/urmzd/centrald/pkg/coordinator"
	"github.com/urmzd/centrald/pkg/ephem"
)

var ErrNoActiveProfile = errors.New("no active profile found")

// Config is the complete runtime configuration loaded from the database.
type Config struct {
	Profile         *Profile
	Protocol        *Endpoint
	API             *Endpoint
	RequiredDevices []string
	Blocks          map[string][]string
}

// ProtocolAddress returns the peer protocol listen address.
func (c *Config) ProtocolAddress() string {
	if c.Protocol == nil {
		return net.JoinHostPort("0.0.0.0", strconv.Itoa(DefaultProtocolPort))
	}
	return c.Protocol.Address()
}

// APIAddress returns the HTTP API listen address.
func (c *Config) APIAddress() string {
	if c.API == nil {
		return net.JoinHostPort("0.0.0.0", strconv.Itoa(DefaultAPIPort))
	}
	return c.API.Address()
}

// Coordinator returns the coordinator policy of the profile.
func (c *Config) Coordinator() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.RequiredDevices = c.RequiredDevices
	cfg.Blocks = c.Blocks
	if p := c.Profile; p != nil {
		cfg.MorningOff = p.MorningOff
		cfg.MorningStandby = p.MorningStandby
		cfg.RebootOn = p.RebootOn
		if p.InfoTimeout > 0 {
			cfg.InfoTimeout = p.InfoTimeout
		}
		if p.AuthPenalty >= 0 {
			cfg.AuthPenalty = p.AuthPenalty
		}
	}
	return cfg
}

// Ephemeris returns the sun model for the profile's site and horizons.
func (c *Config) Ephemeris() *ephem.Sun {
	p := c.Profile
	if p == nil {
		p = DefaultProfile("")
	}
	return &ephem.Sun{
		Longitude:    p.Longitude,
		Latitude:     p.Latitude,
		NightHorizon: p.NightHorizon,
		DayHorizon:   p.DayHorizon,
		EveningTime:  p.EveningTime,
		MorningTime:  p.MorningTime,
	}
}

// ActiveConfig loads the complete configuration for the active profile.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}

	config := &Config{Profile: profile}

	config.Protocol, err = db.Endpoints().Get(ctx, profile.ID, EndpointProtocol)
	if err != nil && !errors.Is(err, ErrEndpointNotFound) {
		return nil, fmt.Errorf("failed to get protocol endpoint: %w", err)
	}
	config.API, err = db.Endpoints().Get(ctx, profile.ID, EndpointAPI)
	if err != nil && !errors.Is(err, ErrEndpointNotFound) {
		return nil, fmt.Errorf("failed to get API endpoint: %w", err)
	}

	if config.RequiredDevices, err = db.Rules().RequiredDevices(ctx, profile.ID); err != nil {
		return nil, fmt.Errorf("failed to get required devices: %w", err)
	}
	if config.Blocks, err = db.Rules().Blocks(ctx, profile.ID); err != nil {
		return nil, fmt.Errorf("failed to get device blocks: %w", err)
	}

	return config, nil
}
