// Package coordinator implements the central arbiter of the observatory
// control network. It owns every peer session and the global state word,
// decides which session holds priority, gates the system on the weather
// reports of required devices and pushes every change to all peers.
//
// All mutations happen under one lock. Network code feeds inbound lines
// through Receive and reports connection loss through Disconnect; the idle
// routine (Tick) reacts to the passage of time.
package coordinator

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/clock"
	"github.com/urmzd/centrald/pkg/ephem"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

// Source is the name under which the coordinator logs its own messages.
const Source = "centrald"

// maxBacklog bounds the commands a session may queue while one is in
// progress. Further commands are refused with ERR.
const maxBacklog = 64

const (
	noHolder       = -1
	shutdownHolder = -2
)

// Config holds the coordinator policy.
type Config struct {
	// RequiredDevices must be connected and report good weather for the
	// system to be considered safe.
	RequiredDevices []string

	// Blocks maps a device name to the devices it is blocked by. A device
	// without an entry is blocked by every other device.
	Blocks map[string][]string

	MorningOff     bool
	MorningStandby bool

	// RebootOn starts the coordinator switched on instead of hard off.
	RebootOn bool

	InfoTimeout  time.Duration
	AuthPenalty  time.Duration
	TickInterval time.Duration
}

// DefaultConfig returns a Config with the standard timeouts. The system
// powers off at morning by default.
func DefaultConfig() Config {
	return Config{
		MorningOff:     true,
		MorningStandby: true,
		InfoTimeout:    30 * time.Second,
		AuthPenalty:    5 * time.Second,
		TickInterval:   500 * time.Millisecond,
	}
}

// Authenticator checks client credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (bool, error)
}

// AuthFunc adapts a function to the Authenticator interface.
type AuthFunc func(ctx context.Context, login, password string) (bool, error)

// Authenticate calls f.
func (f AuthFunc) Authenticate(ctx context.Context, login, password string) (bool, error) {
	return f(ctx, login, password)
}

// Sink receives every log message, in order, before it is delivered to
// sessions.
type Sink interface {
	Append(msg protocol.Message) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithAuthenticator sets the client credential checker.
func WithAuthenticator(a Authenticator) Option {
	return func(co *Coordinator) { co.auth = a }
}

// WithSink sets the append-only message log.
func WithSink(s Sink) Option {
	return func(co *Coordinator) { co.sink = s }
}

// WithKeySource sets the generator for authorization keys.
func WithKeySource(f func() int) Option {
	return func(co *Coordinator) { co.keys = f }
}

// Coordinator is the single authority over sessions and global state.
type Coordinator struct {
	mu sync.Mutex

	cfg   Config
	clock clock.Clock
	ephem ephem.Ephemeris
	auth  Authenticator
	sink  Sink
	keys  func() int

	nextID   int
	sessions map[int]*Session
	order    []*Session // connected sessions by ascending id

	state      state.Word
	holder     int
	nextEvent  ephem.Event
	failed     []string
	badWeather []string

	infos    []*infoRequest
	deferred []deferredCall
	dropping []*Session // closed as slow consumers, not yet removed
}

type deferredCall struct {
	at time.Time
	fn func()
}

// New creates a Coordinator. Call Start before accepting peers.
func New(cfg Config, eph ephem.Ephemeris, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = def.InfoTimeout
	}
	if cfg.AuthPenalty < 0 {
		cfg.AuthPenalty = def.AuthPenalty
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}

	c := &Coordinator{
		cfg:      cfg,
		clock:    clock.Real(),
		ephem:    eph,
		keys:     func() int { return int(rand.Int32()) },
		sessions: make(map[int]*Session),
		holder:   noHolder,
		state:    state.PowerWord(state.HardOff) | state.BadWeather,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start computes the initial phase and power mode and the first weather
// verdict.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.unlock()

	now := c.clock.Now()
	ev := c.ephem.NextEvent(now)
	c.nextEvent = ev

	power := state.HardOff
	if c.cfg.RebootOn {
		power = state.On
		if ev.Power != nil {
			power = *ev.Power
		}
	}
	c.maskState(state.PhaseMask|state.PowerMask,
		state.PhaseWord(ev.Current)|state.PowerWord(power), "switched on centrald reboot")
	c.weatherChanged()

	log.Info().
		Str("state", c.state.String()).
		Str("next_state", ev.Next.String()).
		Time("next_state_change", ev.At).
		Msg("Coordinator started")
}

// Run drives the idle routine until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Shutdown disables priority arbitration and closes every session.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.unlock()

	c.holder = shutdownHolder
	for _, s := range c.order {
		if err := s.conn.Close(); err != nil {
			log.Debug().Err(err).Int("session", s.id).Msg("Failed to close session")
		}
	}
}

// Reconfigure applies a reloaded configuration. Morning policy flags keep
// the values of the first load.
func (c *Coordinator) Reconfigure(cfg Config, eph ephem.Ephemeris) {
	c.mu.Lock()
	defer c.unlock()

	cfg.MorningOff = c.cfg.MorningOff
	cfg.MorningStandby = c.cfg.MorningStandby
	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = c.cfg.InfoTimeout
	}
	if cfg.AuthPenalty < 0 {
		cfg.AuthPenalty = c.cfg.AuthPenalty
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = c.cfg.TickInterval
	}
	c.cfg = cfg
	if eph != nil {
		c.ephem = eph
	}
	// re-arm the ephemeris on the next tick
	c.nextEvent.At = time.Time{}

	c.weatherChanged()
	c.bopMaskChanged()
	c.logMessage(Source, protocol.SeverityInfo, "configuration reloaded")
}

// Connect registers a new peer connection and returns its session.
func (c *Coordinator) Connect(conn Conn) *Session {
	c.mu.Lock()
	defer c.unlock()

	c.nextID++
	s := newSession(c.nextID, conn, c.clock.Now())
	c.sessions[s.id] = s
	c.order = append(c.order, s)

	log.Debug().Int("session", s.id).Str("remote", conn.RemoteAddr()).Msg("Peer connected")
	return s
}

// Disconnect removes a session. The aggregates it fed are recomputed
// before the lock is released.
func (c *Coordinator) Disconnect(s *Session) {
	c.mu.Lock()
	defer c.unlock()

	s.closed = true
	c.drop(s)
}

// drop removes a closed session and recomputes the aggregates it fed.
func (c *Coordinator) drop(s *Session) {
	if _, ok := c.sessions[s.id]; !ok {
		return
	}
	s.hasPriority = false
	delete(c.sessions, s.id)
	for i, o := range c.order {
		if o == s {
			c.order = slices.Delete(c.order, i, i+1)
			break
		}
	}
	if err := s.conn.Close(); err != nil {
		log.Debug().Err(err).Int("session", s.id).Msg("Close after disconnect")
	}

	c.abandonInfo(s)
	c.changePriority(false)
	c.weatherChanged()
	c.bopMaskChanged()

	log.Debug().
		Int("session", s.id).
		Str("role", s.role.String()).
		Str("name", s.name).
		Msg("Peer disconnected")
}

// unlock removes the sessions dropped as slow consumers during the
// current operation, then releases the lock. Removing one can overflow
// another's queue, so it loops until none are left.
func (c *Coordinator) unlock() {
	for len(c.dropping) > 0 {
		s := c.dropping[0]
		c.dropping = c.dropping[1:]
		c.drop(s)
	}
	c.mu.Unlock()
}

// Receive processes one inbound line from a session.
func (c *Coordinator) Receive(s *Session, line string) {
	c.mu.Lock()
	defer c.unlock()

	if s.closed {
		return
	}
	if protocol.IsCompletion(line) {
		c.handleCompletion(s, line)
		return
	}
	if s.busy {
		if len(s.backlog) >= maxBacklog {
			c.reply(s, protocol.Violation("command backlog full"))
			return
		}
		s.backlog = append(s.backlog, line)
		return
	}
	c.execute(s, line)
}

// Tick runs the idle routine: deferred replies, info timeouts, priority
// expiry and ephemeris driven phase changes.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	defer c.unlock()

	now := c.clock.Now()
	c.runDeferred(now)
	c.expireInfo(now)
	c.expirePriority(now)
	c.idle(now)
}

// after schedules fn to run on the first tick at or after d from now.
func (c *Coordinator) after(d time.Duration, fn func()) {
	c.deferred = append(c.deferred, deferredCall{at: c.clock.Now().Add(d), fn: fn})
}

func (c *Coordinator) runDeferred(now time.Time) {
	var due []deferredCall
	keep := c.deferred[:0]
	for _, d := range c.deferred {
		if now.Before(d.at) {
			keep = append(keep, d)
		} else {
			due = append(due, d)
		}
	}
	c.deferred = keep
	for _, d := range due {
		d.fn()
	}
}

func (c *Coordinator) findDevice(name string) *Session {
	for _, s := range c.order {
		if s.isDevice() && s.name == name {
			return s
		}
	}
	return nil
}

func (c *Coordinator) newKey() int {
	for {
		if k := c.keys(); k != 0 {
			return k
		}
	}
}
