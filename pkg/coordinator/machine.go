package coordinator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/ephem"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

// maskState replaces the bits of the global word selected by mask. A
// visible change is logged with a description and broadcast to everyone.
func (c *Coordinator) maskState(mask, value state.Word, description string) {
	old := c.state
	next := old.Masked(mask, value)
	if next == old {
		return
	}
	c.state = next

	severity := protocol.SeverityInfo
	if (old^next)&^(state.BopMask|state.DeviceErrorMask) == 0 {
		severity = protocol.SeverityDebug
	}
	c.logMessage(Source, severity, fmt.Sprintf("State changed from %s to %s (%s) description %s",
		old, next, next.Transition(old), description))

	c.sendAll(protocol.Status(next))
	c.refreshViews()
}

// changePowerMode handles the explicit on/standby/off/soft_off commands.
func (c *Coordinator) changePowerMode(m state.PowerMode, by string) {
	c.logMessage(Source, protocol.SeverityInfo, fmt.Sprintf("State switched to %s by %s", m, by))
	c.maskState(state.PowerMask, state.PowerWord(m), by)
}

// idle polls the ephemeris once the previously computed transition
// instant has passed and applies the new phase.
func (c *Coordinator) idle(now time.Time) {
	if now.Before(c.nextEvent.At) {
		return
	}

	ev := c.ephem.NextEvent(now)
	cur := c.state

	if cur.Phase() != ev.Current {
		switch {
		case cur.Phase() == state.Morning && ev.Current == state.Day && !cur.Power().Off():
			c.morningToDay(ev)
		default:
			c.maskState(state.PhaseMask, state.PhaseWord(ev.Current), "by idle routine")
		}
	}

	c.nextEvent = ev
	c.sendAll(protocol.Value("next_state", ev.Next.String()))
	c.sendAll(protocol.Value("next_state_change", strconv.FormatInt(ev.At.Unix(), 10)))

	log.Debug().
		Str("state", c.state.String()).
		Str("next_state", ev.Next.String()).
		Time("next_state_change", ev.At).
		Msg("Ephemeris re-armed")
}

// morningToDay applies the morning policy when the day begins: hard off
// when morning_off is set, standby when morning_standby is set, otherwise
// the mode the ephemeris associates with the day.
func (c *Coordinator) morningToDay(ev ephem.Event) {
	day := state.PhaseWord(state.Day)
	switch {
	case c.cfg.MorningOff:
		c.maskState(state.PhaseMask|state.PowerMask, day|state.PowerWord(state.HardOff), "by idle routine")
	case c.cfg.MorningStandby:
		c.maskState(state.PhaseMask|state.PowerMask, day|state.PowerWord(state.Standby), "by idle routine")
	case ev.Power != nil:
		c.maskState(state.PhaseMask|state.PowerMask, day|state.PowerWord(*ev.Power), "by idle routine")
	default:
		c.maskState(state.PhaseMask, day, "by idle routine")
	}
}
