package coordinator

import (
	"fmt"
	"slices"
	"testing"

	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

func checkWeather(t *testing.T, h *harness, good bool, failed ...string) {
	t.Helper()
	snap := h.c.Snapshot()
	if snap.State.GoodWeather() != good {
		t.Errorf("good weather = %v, want %v (state %s)", snap.State.GoodWeather(), good, snap.State)
	}
	if !slices.Equal(snap.FailedDevices, failed) {
		t.Errorf("failed devices = %v, want %v", snap.FailedDevices, failed)
	}
}

func TestRequiredDevicesGateWeather(t *testing.T) {
	h := newHarness(t, Config{RequiredDevices: []string{"dome", "rain"}})
	checkWeather(t, h, false, "dome", "rain")

	dome, _ := h.device("dome")
	checkWeather(t, h, false, "rain")

	rain, _ := h.device("rain")
	checkWeather(t, h, true)

	h.c.Receive(rain, fmt.Sprintf("state %#x", uint32(state.BadWeather)))
	checkWeather(t, h, false, "rain")

	// a good report from another device does not clear rain's verdict
	cam, camConn := h.device("cam")
	h.c.Receive(cam, "state 0")
	checkWeather(t, h, false, "rain")

	camConn.take()
	h.c.Receive(rain, "state 0")
	checkWeather(t, h, true)
	if !hasLine(camConn.take(), "V failed_devices") {
		t.Error("empty failed set not broadcast")
	}

	h.c.Disconnect(dome)
	checkWeather(t, h, false, "dome")
	if !hasLine(camConn.take(), "V failed_devices dome") {
		t.Error("failed set not broadcast after disconnect")
	}
}

func TestOptionalDeviceBadWeatherIsInformational(t *testing.T) {
	h := newHarness(t, Config{})
	checkWeather(t, h, true)

	cam, camConn := h.device("cam")
	h.c.Receive(cam, fmt.Sprintf("state %d", uint32(state.BadWeather)))
	checkWeather(t, h, true)

	snap := h.c.Snapshot()
	if !slices.Equal(snap.BadWeatherDevices, []string{"cam"}) {
		t.Errorf("bad weather devices = %v", snap.BadWeatherDevices)
	}
	if !hasLine(camConn.take(), "V bad_weather_devices cam") {
		t.Error("bad weather device not published")
	}

	h.c.Receive(cam, "state 0")
	if got := h.c.Snapshot().BadWeatherDevices; len(got) != 0 {
		t.Errorf("bad weather devices after recovery = %v", got)
	}
}

func TestBopViewFollowsBlockList(t *testing.T) {
	h := newHarness(t, Config{Blocks: map[string][]string{
		"T0": {"C0"},
		"C0": {},
	}})
	t0, t0Conn := h.device("T0")
	c0, _ := h.device("C0")
	c1, _ := h.device("C1") // no entry: blocked by everyone

	h.c.Receive(c0, fmt.Sprintf("state %d", uint32(state.BopExposure)))
	h.c.Receive(c1, fmt.Sprintf("state %d", uint32(state.BopReadout)))

	snap := h.c.Snapshot()
	if got := snap.State.Bop(); got != state.BopExposure|state.BopReadout {
		t.Errorf("global bop = %#x", uint32(got))
	}
	views := map[string]state.Word{}
	for _, s := range snap.Sessions {
		views[s.Name] = s.View.Bop()
	}
	want := map[string]state.Word{
		"T0": state.BopExposure,
		"C0": 0,
		"C1": state.BopExposure,
	}
	for name, w := range want {
		if views[name] != w {
			t.Errorf("%s view bop = %#x, want %#x", name, uint32(views[name]), uint32(w))
		}
	}

	si, _ := snap.Session(t0.ID())
	if got := lastWithPrefix(t0Conn.take(), "B "); got != protocol.Bop(si.View) {
		t.Errorf("last view sent to T0 = %q, want %q", got, protocol.Bop(si.View))
	}

	// C1's error bits change the global word but not T0's view
	h.c.Receive(c1, fmt.Sprintf("state %d", uint32(state.BopReadout|0x00010000)))
	if got := h.c.Snapshot().State.DeviceErrors(); got != 0x00010000 {
		t.Errorf("device errors = %#x", uint32(got))
	}
	lines := t0Conn.take()
	if hasPrefix(lines, "B ") {
		t.Errorf("T0 received an unchanged view: %v", lines)
	}
	if !hasPrefix(lines, "S ") {
		t.Errorf("T0 missed the global state change: %v", lines)
	}

	h.c.Disconnect(c0)
	snap = h.c.Snapshot()
	if got := snap.State.Bop(); got != state.BopReadout {
		t.Errorf("global bop after disconnect = %#x", uint32(got))
	}
	si, _ = snap.Session(t0.ID())
	if si.View.Bop() != 0 {
		t.Errorf("T0 view bop after disconnect = %#x", uint32(si.View.Bop()))
	}
	if si.View.DeviceErrors() != 0 {
		t.Errorf("view carries device errors: %#x", uint32(si.View.DeviceErrors()))
	}
	if !hasLine(t0Conn.take(), protocol.Bop(si.View)) {
		t.Error("changed view not sent to T0")
	}
}
