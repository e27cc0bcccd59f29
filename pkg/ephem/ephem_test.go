package ephem

import (
	"testing"
	"time"

	"github.com/urmzd/centrald/pkg/state"
)

func equatorSun() *Sun {
	return &Sun{
		Longitude:    0,
		Latitude:     0,
		NightHorizon: -10,
		DayHorizon:   0,
		EveningTime:  2 * time.Hour,
		MorningTime:  30 * time.Minute,
	}
}

func TestAltitude_NoonAndMidnight(t *testing.T) {
	s := equatorSun()

	noon := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	if alt := s.Altitude(noon); alt < 80 {
		t.Errorf("expected sun near zenith at equinox noon, got %.1f", alt)
	}

	midnight := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	if alt := s.Altitude(midnight); alt > -80 {
		t.Errorf("expected sun near nadir at midnight, got %.1f", alt)
	}
}

func TestPhaseAt(t *testing.T) {
	s := equatorSun()
	day := func(h, m int) time.Time { return time.Date(2024, 3, 20, h, m, 0, 0, time.UTC) }

	cases := []struct {
		at   time.Time
		want state.Phase
	}{
		{day(12, 0), state.Day},
		{day(17, 0), state.Evening},
		{day(18, 20), state.Dusk},
		{day(0, 0), state.Night},
		{day(5, 45), state.Dawn},
		{day(6, 20), state.Morning},
		{day(9, 0), state.Day},
	}
	for _, tc := range cases {
		if got := s.PhaseAt(tc.at); got != tc.want {
			t.Errorf("PhaseAt(%s) = %s, want %s", tc.at.Format("15:04"), got, tc.want)
		}
	}
}

func TestNextEvent_FromNoon(t *testing.T) {
	s := equatorSun()
	noon := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	ev := s.NextEvent(noon)
	if ev.Current != state.Day {
		t.Errorf("expected current day, got %s", ev.Current)
	}
	if ev.Next != state.Evening {
		t.Errorf("expected next evening, got %s", ev.Next)
	}
	lo := time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC)
	hi := time.Date(2024, 3, 20, 16, 45, 0, 0, time.UTC)
	if ev.At.Before(lo) || ev.At.After(hi) {
		t.Errorf("evening at %s outside expected window", ev.At)
	}
	if ev.Power != nil {
		t.Error("sun ephemeris should not dictate a power mode")
	}
}

func TestNextEvent_ChainsThroughNight(t *testing.T) {
	s := equatorSun()
	at := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	want := []state.Phase{state.Evening, state.Dusk, state.Night, state.Dawn, state.Morning, state.Day}
	for _, w := range want {
		ev := s.NextEvent(at)
		if ev.Next != w {
			t.Fatalf("after %s expected %s, got %s", ev.Current, w, ev.Next)
		}
		if !ev.At.After(at) {
			t.Fatalf("transition at %s not after %s", ev.At, at)
		}
		at = ev.At
		if got := s.PhaseAt(at); got != w {
			t.Fatalf("phase at transition instant is %s, want %s", got, w)
		}
	}
}

func TestFunc(t *testing.T) {
	standby := state.Standby
	f := Func(func(now time.Time) Event {
		return Event{Current: state.Day, Next: state.Evening, At: now.Add(time.Hour), Power: &standby}
	})
	ev := f.NextEvent(time.Unix(0, 0))
	if ev.Power == nil || *ev.Power != state.Standby {
		t.Error("Func did not pass through the event")
	}
}
