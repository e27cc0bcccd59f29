package coordinator

import (
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/protocol"
)

// send queues a line for one session. A session that cannot keep up is
// closed at once and removed when the current operation releases the lock.
func (c *Coordinator) send(s *Session, line string) {
	if s.closed {
		return
	}
	if s.conn.Send(line) {
		return
	}
	log.Warn().Int("session", s.id).Str("name", s.name).Msg("Outbound queue full, dropping peer")
	s.closed = true
	s.hasPriority = false
	if err := s.conn.Close(); err != nil {
		log.Debug().Err(err).Int("session", s.id).Msg("Failed to close slow peer")
	}
	c.dropping = append(c.dropping, s)
}

// sendAll queues a line for every session in id order.
func (c *Coordinator) sendAll(line string) {
	for _, s := range c.order {
		c.send(s, line)
	}
}

// logMessage appends a message to the journal and forwards it to every
// session whose message mask accepts the severity.
func (c *Coordinator) logMessage(source string, severity protocol.Severity, text string) {
	msg := protocol.Message{
		Time:     c.clock.Now(),
		Source:   source,
		Severity: severity,
		Text:     text,
	}

	if c.sink != nil {
		if err := c.sink.Append(msg); err != nil {
			log.Error().Err(err).Msg("Failed to append to message log")
		}
	}
	log.WithLevel(zerologLevel(severity)).Str("source", source).Msg(text)

	line := msg.Line()
	for _, s := range c.order {
		if severity.Passes(s.messageMask) {
			c.send(s, line)
		}
	}
}

// LogMessage logs a message on behalf of the coordinator process.
func (c *Coordinator) LogMessage(severity protocol.Severity, text string) {
	c.mu.Lock()
	defer c.unlock()
	c.logMessage(Source, severity, text)
}

func zerologLevel(s protocol.Severity) zerolog.Level {
	switch s {
	case protocol.SeverityError:
		return zerolog.ErrorLevel
	case protocol.SeverityWarning:
		return zerolog.WarnLevel
	case protocol.SeverityInfo:
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}

// announce tells every session about a newly declared one.
func (c *Coordinator) announce(added *Session) {
	line, ok := added.infoLine()
	if !ok {
		return
	}
	c.sendAll(line)
}

// sendListing sends s every declared session followed by the coordinator
// values.
func (c *Coordinator) sendListing(s *Session) {
	for _, o := range c.order {
		if line, ok := o.infoLine(); ok {
			c.send(s, line)
		}
	}
	for _, line := range c.valueLines() {
		c.send(s, line)
	}
}

func (c *Coordinator) valueLines() []string {
	client, bid := c.priorityValues()
	return []string{
		protocol.Value("priority_client", client),
		protocol.Value("priority", strconv.Itoa(bid)),
		protocol.Value("required_devices", c.cfg.RequiredDevices...),
		protocol.Value("failed_devices", c.failed...),
		protocol.Value("bad_weather_devices", c.badWeather...),
		protocol.Value("morning_off", strconv.FormatBool(c.cfg.MorningOff)),
		protocol.Value("morning_standby", strconv.FormatBool(c.cfg.MorningStandby)),
		protocol.Value("next_state", c.nextEvent.Next.String()),
		protocol.Value("next_state_change", strconv.FormatInt(c.nextEvent.At.Unix(), 10)),
	}
}
