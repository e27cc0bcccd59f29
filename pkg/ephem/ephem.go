// Package ephem provides the day/night transition source consumed by the
// coordinator's idle routine.
package ephem

import (
	"math"
	"time"

	"github.com/urmzd/centrald/pkg/state"
)

// Event is the answer of an Ephemeris for a given instant: the phase that
// holds now, the phase that follows and when it begins.
type Event struct {
	Current state.Phase
	Next    state.Phase
	At      time.Time

	// Power is the mode associated with Current. Nil keeps the mode the
	// coordinator already has.
	Power *state.PowerMode
}

// Ephemeris computes the current phase and the next transition.
type Ephemeris interface {
	NextEvent(now time.Time) Event
}

// Func adapts a plain function to the Ephemeris interface.
type Func func(now time.Time) Event

// NextEvent calls f.
func (f Func) NextEvent(now time.Time) Event {
	return f(now)
}

// Sun derives phases from the solar altitude at an observatory.
//
// Evening starts EveningTime before the sun sets below DayHorizon, dusk
// lasts until it sets below NightHorizon, dawn starts when it rises above
// NightHorizon again, and morning covers MorningTime after it rises above
// DayHorizon.
type Sun struct {
	Longitude    float64 // degrees, east positive
	Latitude     float64 // degrees
	NightHorizon float64 // degrees
	DayHorizon   float64 // degrees
	EveningTime  time.Duration
	MorningTime  time.Duration
}

const (
	searchStep    = time.Minute
	searchHorizon = 48 * time.Hour
)

// NextEvent implements Ephemeris.
func (s *Sun) NextEvent(now time.Time) Event {
	now = now.Truncate(time.Second)
	cur := s.PhaseAt(now)

	lo := now
	for t := now.Add(searchStep); t.Sub(now) <= searchHorizon; t = t.Add(searchStep) {
		next := s.PhaseAt(t)
		if next == cur {
			lo = t
			continue
		}
		// bisect to one second between lo (cur) and t (next)
		hi := t
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
			if mid.Equal(lo) {
				break
			}
			if s.PhaseAt(mid) == cur {
				lo = mid
			} else {
				hi = mid
			}
		}
		return Event{Current: cur, Next: s.PhaseAt(hi), At: hi}
	}

	// polar day or night: nothing changes within the search window
	return Event{Current: cur, Next: cur, At: now.Add(24 * time.Hour)}
}

// PhaseAt returns the phase holding at t.
func (s *Sun) PhaseAt(t time.Time) state.Phase {
	alt := s.Altitude(t)
	switch {
	case alt < s.NightHorizon:
		return state.Night
	case alt < s.DayHorizon:
		if s.Altitude(t.Add(time.Minute)) > alt {
			return state.Dawn
		}
		return state.Dusk
	}
	if s.MorningTime > 0 && s.Altitude(t.Add(-s.MorningTime)) < s.DayHorizon && s.Altitude(t.Add(time.Minute)) > alt {
		return state.Morning
	}
	if s.EveningTime > 0 && s.Altitude(t.Add(s.EveningTime)) < s.DayHorizon {
		return state.Evening
	}
	return state.Day
}

// Altitude returns the geometric altitude of the sun in degrees, using the
// low precision solar coordinates of the Astronomical Almanac (about 0.01
// degree accuracy between 1950 and 2050).
func (s *Sun) Altitude(t time.Time) float64 {
	d := float64(t.Unix())/86400.0 + 2440587.5 - 2451545.0

	g := rad(357.529 + 0.98560028*d)
	q := 280.459 + 0.98564736*d
	l := rad(q + 1.915*math.Sin(g) + 0.020*math.Sin(2*g))
	e := rad(23.439 - 0.00000036*d)

	ra := math.Atan2(math.Cos(e)*math.Sin(l), math.Cos(l))
	dec := math.Asin(math.Sin(e) * math.Sin(l))

	gmst := math.Mod(18.697374558+24.06570982441908*d, 24)
	lst := rad(gmst*15 + s.Longitude)
	h := lst - ra

	lat := rad(s.Latitude)
	sinAlt := math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(h)
	return deg(math.Asin(sinAlt))
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
