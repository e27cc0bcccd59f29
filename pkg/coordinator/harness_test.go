package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urmzd/centrald/pkg/clock"
	"github.com/urmzd/centrald/pkg/ephem"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeConn struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	full   bool
}

func (f *fakeConn) Send(line string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.lines = append(f.lines, line)
	return true
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "test" }

// take returns the lines received since the last call.
func (f *fakeConn) take() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.lines
	f.lines = nil
	return out
}

type memorySink struct {
	msgs []protocol.Message
}

func (m *memorySink) Append(msg protocol.Message) error {
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *memorySink) contains(text string) bool {
	for _, msg := range m.msgs {
		if strings.Contains(msg.Text, text) {
			return true
		}
	}
	return false
}

// scriptedEphemeris returns whatever phase the test sets.
type scriptedEphemeris struct {
	current state.Phase
	next    state.Phase
	at      time.Time
	power   *state.PowerMode
}

func (e *scriptedEphemeris) NextEvent(now time.Time) ephem.Event {
	return ephem.Event{Current: e.current, Next: e.next, At: e.at, Power: e.power}
}

type harness struct {
	t     *testing.T
	c     *Coordinator
	clock *clock.Fake
	eph   *scriptedEphemeris
	sink  *memorySink
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessIn(t, cfg, state.Night)
}

// newHarnessIn starts a coordinator whose ephemeris reports phase until
// the test changes it. The next transition is one hour after the start.
func newHarnessIn(t *testing.T, cfg Config, phase state.Phase) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: clock.NewFake(testStart),
		eph: &scriptedEphemeris{
			current: phase,
			next:    (phase + 1) % (state.Morning + 1),
			at:      testStart.Add(time.Hour),
		},
		sink: &memorySink{},
	}
	if cfg.InfoTimeout == 0 {
		cfg.InfoTimeout = 30 * time.Second
	}
	if cfg.AuthPenalty == 0 {
		cfg.AuthPenalty = 5 * time.Second
	}
	auth := AuthFunc(func(_ context.Context, login, password string) (bool, error) {
		return password == "pw-"+login, nil
	})
	h.c = New(cfg, h.eph,
		WithClock(h.clock),
		WithAuthenticator(auth),
		WithSink(h.sink),
		WithKeySource(func() int { return 42 }),
	)
	h.c.Start()
	return h
}

func (h *harness) connect() (*Session, *fakeConn) {
	conn := &fakeConn{}
	return h.c.Connect(conn), conn
}

// client connects, logs in and authenticates.
func (h *harness) client(login string) (*Session, *fakeConn) {
	h.t.Helper()
	s, conn := h.connect()
	h.c.Receive(s, "login "+login)
	h.c.Receive(s, "password pw-"+login)
	lines := conn.take()
	if last(lines) != "OK 0" {
		h.t.Fatalf("client %s login failed: %v", login, lines)
	}
	return s, conn
}

// device connects and registers.
func (h *harness) device(name string) (*Session, *fakeConn) {
	h.t.Helper()
	s, conn := h.connect()
	h.c.Receive(s, fmt.Sprintf("register 1 %s 2 %s.local 5000", name, name))
	lines := conn.take()
	if last(lines) != "OK 0" {
		h.t.Fatalf("device %s register failed: %v", name, lines)
	}
	return s, conn
}

func (h *harness) tickAfter(d time.Duration) {
	h.clock.Advance(d)
	h.c.Tick()
}

func last(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func lastWithPrefix(lines []string, prefix string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], prefix) {
			return lines[i]
		}
	}
	return ""
}

func hasLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func hasPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
