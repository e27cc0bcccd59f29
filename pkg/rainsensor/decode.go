// Package rainsensor bridges a serial rain sensor to the coordinator as a
// weather-reporting device.
package rainsensor

import (
	"errors"
	"fmt"
	"strings"
)

// Reading is one sample from the sensor.
type Reading int

const (
	Dry Reading = iota
	Wet
)

func (r Reading) String() string {
	if r == Wet {
		return "wet"
	}
	return "dry"
}

// ErrUnknownLine is returned for lines that carry no reading.
var ErrUnknownLine = errors.New("unrecognised sensor line")

// ParseLine decodes one line of sensor output. Sensors print either a bare
// DRY/WET word or a key=value pair with rain=0/1.
func ParseLine(line string) (Reading, error) {
	s := strings.ToLower(strings.TrimSpace(line))
	switch s {
	case "dry", "d", "0":
		return Dry, nil
	case "wet", "rain", "w", "1":
		return Wet, nil
	}
	if k, v, ok := strings.Cut(s, "="); ok && strings.TrimSpace(k) == "rain" {
		switch strings.TrimSpace(v) {
		case "0":
			return Dry, nil
		case "1":
			return Wet, nil
		}
	}
	return Dry, fmt.Errorf("%w: %q", ErrUnknownLine, line)
}
