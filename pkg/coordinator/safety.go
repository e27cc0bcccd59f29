package coordinator

import (
	"slices"
	"strings"

	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

// deviceStatus applies a status word reported by a device: its weather
// verdict, its block-on-priority bits and its error bits.
func (c *Coordinator) deviceStatus(s *Session, w state.Word) {
	good := w.GoodWeather()
	bop := w.Bop()
	errs := w.DeviceErrors()

	weatherChanged := good != s.weatherGood
	bopChanged := bop != s.bop || errs != s.errs

	s.weatherGood = good
	s.bop = bop
	s.errs = errs

	if weatherChanged {
		c.weatherChanged()
	}
	if bopChanged {
		c.bopMaskChanged()
	}
}

// weatherChanged recomputes the failed-device set and the system-wide
// weather bit. Only required devices gate the system: a required device
// leaves the failed set when it is connected and reports good weather.
// Other devices reporting bad weather are published for information.
func (c *Coordinator) weatherChanged() {
	var failed []string
	for _, name := range c.cfg.RequiredDevices {
		d := c.findDevice(name)
		if d == nil || !d.weatherGood {
			failed = append(failed, name)
		}
	}

	var bad []string
	for _, s := range c.order {
		if s.isDevice() && !s.weatherGood && !slices.Contains(c.cfg.RequiredDevices, s.name) {
			bad = append(bad, s.name)
		}
	}

	if !slices.Equal(failed, c.failed) {
		c.failed = failed
		c.sendAll(protocol.Value("failed_devices", failed...))
		if len(failed) > 0 {
			c.logMessage(Source, protocol.SeverityDebug, "failed devices: "+strings.Join(failed, " "))
		}
	}
	if !slices.Equal(bad, c.badWeather) {
		c.badWeather = bad
		c.sendAll(protocol.Value("bad_weather_devices", bad...))
	}

	weather := state.Word(0)
	if len(failed) > 0 {
		weather = state.BadWeather
	}
	c.maskState(state.WeatherMask, weather, "weather recomputed")
}

// bopMaskChanged ORs the BOP and error bits of every device into the
// global word and refreshes every device's view.
func (c *Coordinator) bopMaskChanged() {
	var bits state.Word
	for _, s := range c.order {
		if s.isDevice() {
			bits |= s.bop | s.errs
		}
	}
	c.maskState(state.BopMask|state.DeviceErrorMask, bits, "changed BOP state")
	c.refreshViews()
}

// blockedBy reports whether device is blocked by other according to the
// configured block list.
func (c *Coordinator) blockedBy(device, other string) bool {
	list, ok := c.cfg.Blocks[device]
	if !ok {
		return true
	}
	return slices.Contains(list, other)
}

// stateFor returns the state word as seen by s. Devices get a BOP mask
// built only from the devices they are blocked by, never themselves.
func (c *Coordinator) stateFor(s *Session) state.Word {
	if !s.isDevice() {
		return c.state
	}
	w := c.state &^ (state.BopMask | state.DeviceErrorMask)
	for _, o := range c.order {
		if o == s || !o.isDevice() || !c.blockedBy(s.name, o.name) {
			continue
		}
		w |= o.bop
	}
	return w
}

// refreshViews sends every device its per-connection view when it changed.
func (c *Coordinator) refreshViews() {
	for _, s := range c.order {
		if !s.isDevice() {
			continue
		}
		view := c.stateFor(s)
		if s.viewSent && view == s.lastView {
			continue
		}
		s.lastView = view
		s.viewSent = true
		c.send(s, protocol.Bop(view))
	}
}
