package coordinator

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/protocol"
)

// request is a command the coordinator sent to a device and whose
// completion it still expects. Devices answer in order, so completions
// are matched against the oldest request.
type request struct {
	target   *Session
	info     *infoRequest
	deadline time.Time
	expired  bool // answered by timeout or abandoned; a late completion is dropped
}

// infoRequest is a suspended info command waiting for device replies.
type infoRequest struct {
	origin      *Session
	waiting     map[int]*request
	timedOut    []string
	unreachable []string
}

// startInfo asks every relevant device to report status. It returns
// errSuspended when at least one request went out.
func (c *Coordinator) startInfo(origin *Session) error {
	ir := &infoRequest{origin: origin, waiting: make(map[int]*request)}
	deadline := c.clock.Now().Add(c.cfg.InfoTimeout)

	for _, t := range c.order {
		if t == origin || !t.isDevice() {
			continue
		}
		if origin.isDevice() && !c.blockedBy(origin.name, t.name) {
			continue
		}
		r := &request{target: t, info: ir, deadline: deadline}
		t.requests = append(t.requests, r)
		ir.waiting[t.id] = r
		c.send(t, "info")
	}

	if len(ir.waiting) == 0 {
		c.send(origin, protocol.Status(c.state))
		c.send(origin, protocol.Bop(c.stateFor(origin)))
		return nil
	}
	c.infos = append(c.infos, ir)
	return errSuspended
}

// handleCompletion matches an OK/ERR line from a device against its oldest
// outstanding request.
func (c *Coordinator) handleCompletion(s *Session, line string) {
	if len(s.requests) == 0 {
		log.Warn().Int("session", s.id).Str("line", line).Msg("Unexpected completion")
		return
	}
	r := s.requests[0]
	s.requests = s.requests[1:]

	_, err := protocol.ParseCompletion(line)
	if r.expired {
		log.Debug().Str("device", s.name).Msg("Late info reply ignored")
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("device", s.name).Msg("Device failed info request")
	}
	delete(r.info.waiting, s.id)
	r.expired = true
	c.finishInfo(r.info)
}

// expireInfo answers requests whose device did not reply in time.
func (c *Coordinator) expireInfo(now time.Time) {
	for _, ir := range slices.Clone(c.infos) {
		for _, t := range c.order {
			r, ok := ir.waiting[t.id]
			if !ok || now.Before(r.deadline) {
				continue
			}
			r.expired = true
			delete(ir.waiting, t.id)
			ir.timedOut = append(ir.timedOut, t.name)
			c.logMessage(Source, protocol.SeverityWarning,
				fmt.Sprintf("device %s did not answer info within %s", t.name, c.cfg.InfoTimeout))
		}
		c.finishInfo(ir)
	}
}

// abandonInfo releases everything tied to a departing session: info
// commands it issued and requests it still had to answer.
func (c *Coordinator) abandonInfo(s *Session) {
	keep := c.infos[:0]
	for _, ir := range c.infos {
		if ir.origin != s {
			keep = append(keep, ir)
			continue
		}
		for _, r := range ir.waiting {
			r.expired = true
		}
	}
	c.infos = keep

	for _, r := range s.requests {
		if r.expired {
			continue
		}
		r.expired = true
		delete(r.info.waiting, s.id)
		r.info.unreachable = append(r.info.unreachable, s.name)
		c.finishInfo(r.info)
	}
	s.requests = nil
}

// finishInfo completes an info command once no device is outstanding.
func (c *Coordinator) finishInfo(ir *infoRequest) {
	if len(ir.waiting) > 0 {
		return
	}
	i := slices.Index(c.infos, ir)
	if i < 0 {
		return
	}
	c.infos = slices.Delete(c.infos, i, i+1)

	origin := ir.origin
	if len(ir.timedOut) > 0 || len(ir.unreachable) > 0 {
		log.Info().
			Int("session", origin.id).
			Str("timed_out", strings.Join(ir.timedOut, ",")).
			Str("unreachable", strings.Join(ir.unreachable, ",")).
			Msg("Info completed partially")
	}
	c.send(origin, protocol.Status(c.state))
	c.send(origin, protocol.Bop(c.stateFor(origin)))
	c.complete(origin, nil)
}
