// Package config imports a YAML configuration file into the active
// database profile. The file is validated against an embedded JSON Schema
// before anything is written.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/db"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// File is a parsed configuration file. Unset fields leave the stored
// values alone.
type File struct {
	Profile     string       `yaml:"profile"`
	Observatory *Observatory `yaml:"observatory"`
	Centrald    *Centrald    `yaml:"centrald"`
	Users       []User       `yaml:"users"`
}

// Observatory holds the site and the horizons of the day/night phases.
// Times are in seconds.
type Observatory struct {
	Longitude    *float64 `yaml:"longitude"`
	Latitude     *float64 `yaml:"latitude"`
	NightHorizon *float64 `yaml:"night_horizon"`
	DayHorizon   *float64 `yaml:"day_horizon"`
	EveningTime  *int     `yaml:"evening_time"`
	MorningTime  *int     `yaml:"morning_time"`
}

// Centrald holds the coordinator policy and listen addresses.
type Centrald struct {
	Listen          string              `yaml:"listen"`
	API             string              `yaml:"api"`
	MorningOff      *bool               `yaml:"morning_off"`
	MorningStandby  *bool               `yaml:"morning_standby"`
	RebootOn        *bool               `yaml:"reboot_on"`
	InfoTimeout     string              `yaml:"info_timeout"`
	AuthPenalty     string              `yaml:"auth_penalty"`
	RequiredDevices []string            `yaml:"required_devices"`
	Blocks          map[string][]string `yaml:"blocks"`
}

// User is a client login with a clear-text password; it is hashed when
// stored.
type User struct {
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a YAML document.
func Parse(data []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(doc); err != nil {
		return nil, err
	}

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if f.Profile == "" {
		f.Profile = "default"
	}
	return f, nil
}

// Apply writes the file into the database and makes its profile active.
// The profile is created when it does not exist.
func (f *File) Apply(ctx context.Context, d *db.DB) error {
	profiles := d.Profiles()
	p, err := profiles.GetByName(ctx, f.Profile)
	if errors.Is(err, db.ErrProfileNotFound) {
		p = db.DefaultProfile(f.Profile)
		if err := profiles.Create(ctx, p); err != nil {
			return err
		}
		log.Info().Str("profile", p.Name).Msg("Created profile")
	} else if err != nil {
		return fmt.Errorf("failed to get profile %s: %w", f.Profile, err)
	}

	if err := f.applyProfile(p); err != nil {
		return err
	}
	if err := profiles.Update(ctx, p); err != nil {
		return err
	}
	if err := profiles.SetActive(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to activate profile %s: %w", p.Name, err)
	}

	if c := f.Centrald; c != nil {
		for kind, addr := range map[string]string{db.EndpointProtocol: c.Listen, db.EndpointAPI: c.API} {
			if addr == "" {
				continue
			}
			e, err := parseEndpoint(p.ID, kind, addr)
			if err != nil {
				return err
			}
			if err := d.Endpoints().Put(ctx, e); err != nil {
				return err
			}
		}
		if c.RequiredDevices != nil {
			if err := d.Rules().SetRequiredDevices(ctx, p.ID, c.RequiredDevices); err != nil {
				return fmt.Errorf("failed to store required devices: %w", err)
			}
		}
		if c.Blocks != nil {
			if err := d.Rules().SetBlocks(ctx, p.ID, c.Blocks); err != nil {
				return fmt.Errorf("failed to store device blocks: %w", err)
			}
		}
	}

	for _, u := range f.Users {
		if err := d.Users().SetPassword(ctx, u.Login, u.Password); err != nil {
			return err
		}
	}

	log.Info().
		Str("profile", p.Name).
		Int("users", len(f.Users)).
		Msg("Configuration imported")
	return nil
}

func (f *File) applyProfile(p *db.Profile) error {
	if o := f.Observatory; o != nil {
		setIf(&p.Longitude, o.Longitude)
		setIf(&p.Latitude, o.Latitude)
		setIf(&p.NightHorizon, o.NightHorizon)
		setIf(&p.DayHorizon, o.DayHorizon)
		if o.EveningTime != nil {
			p.EveningTime = time.Duration(*o.EveningTime) * time.Second
		}
		if o.MorningTime != nil {
			p.MorningTime = time.Duration(*o.MorningTime) * time.Second
		}
	}

	c := f.Centrald
	if c == nil {
		return nil
	}
	setIf(&p.MorningOff, c.MorningOff)
	setIf(&p.MorningStandby, c.MorningStandby)
	setIf(&p.RebootOn, c.RebootOn)
	if err := setDuration(&p.InfoTimeout, "info_timeout", c.InfoTimeout); err != nil {
		return err
	}
	return setDuration(&p.AuthPenalty, "auth_penalty", c.AuthPenalty)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	*dst = d
	return nil
}

func parseEndpoint(profileID int64, kind, addr string) (*db.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s address %q: %v", ErrInvalid, kind, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %s port %q", ErrInvalid, kind, portStr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return &db.Endpoint{ProfileID: profileID, Kind: kind, Host: host, Port: port}, nil
}
