package coordinator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/protocol"
)

// requestPriority records a bid for s. A positive hold limits the bid to
// that duration from now; zero holds indefinitely.
func (c *Coordinator) requestPriority(s *Session, bid int, hold time.Duration) {
	s.priority = bid
	s.holdUntil = time.Time{}
	if hold > 0 {
		s.holdUntil = c.clock.Now().Add(hold)
	}
	c.changePriority(true)
}

// validBid reports whether s currently competes for priority.
func (c *Coordinator) validBid(s *Session, now time.Time) bool {
	return !s.closed && s.priority > 0 && !s.holdExpired(now)
}

// changePriority recomputes the priority holder. The current holder keeps
// priority unless it is gone, its hold expired or another session bids
// strictly higher; among challengers with equal bids the lowest session id
// wins. The holder notice is broadcast when the holder changes or when
// requested is set.
func (c *Coordinator) changePriority(requested bool) {
	if c.holder == shutdownHolder {
		return
	}
	now := c.clock.Now()

	newHolder := noHolder
	best := 0
	if h, ok := c.sessions[c.holder]; ok && c.validBid(h, now) {
		newHolder = h.id
		best = h.priority
	}
	for _, s := range c.order {
		if c.validBid(s, now) && s.priority > best {
			newHolder = s.id
			best = s.priority
		}
	}

	changed := newHolder != c.holder
	if changed {
		if old, ok := c.sessions[c.holder]; ok {
			old.hasPriority = false
		}
		c.holder = newHolder
		if h, ok := c.sessions[c.holder]; ok {
			h.hasPriority = true
		}
		log.Info().Int("holder", c.holder).Int("priority", best).Msg("Priority changed")
	}
	if !changed && !requested {
		return
	}

	var timeout int64
	clientName := "(null)"
	if h, ok := c.sessions[c.holder]; ok {
		clientName = h.name
		if !h.holdUntil.IsZero() {
			timeout = h.holdUntil.Unix()
		}
	}
	c.sendAll(protocol.Priority(c.holder, timeout))
	c.sendAll(protocol.Value("priority_client", clientName))
	c.sendAll(protocol.Value("priority", strconv.Itoa(best)))

	if changed {
		c.logMessage(Source, protocol.SeverityDebug, fmt.Sprintf("priority holder %d (%s) with bid %d", c.holder, clientName, best))
	}
}

// expirePriority drops time-limited bids whose hold has run out and
// recomputes the holder if any expired.
func (c *Coordinator) expirePriority(now time.Time) {
	expired := false
	for _, s := range c.order {
		if s.priority > 0 && s.holdExpired(now) {
			log.Info().Int("session", s.id).Str("name", s.name).Msg("Priority hold expired")
			s.priority = -1
			s.holdUntil = time.Time{}
			expired = true
		}
	}
	if expired {
		c.changePriority(false)
	}
}

// priorityValues returns the published priority values.
func (c *Coordinator) priorityValues() (client string, bid int) {
	h, ok := c.sessions[c.holder]
	if !ok {
		return "(null)", 0
	}
	bid = h.priority
	if bid < 0 {
		bid = 0
	}
	return h.name, bid
}
