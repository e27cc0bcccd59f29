package coordinator

import (
	"fmt"
	"time"

	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

// Role is the declared kind of a peer. It is set once by login or register.
type Role int

const (
	RoleUndeclared Role = iota
	RoleClient
	RoleDevice
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleDevice:
		return "device"
	}
	return "undeclared"
}

// Conn is the outbound side of a peer connection. Send must not block: it
// queues the line and reports false when the peer cannot keep up.
type Conn interface {
	Send(line string) bool
	Close() error
	RemoteAddr() string
}

// Session is the coordinator's view of one connected peer. All fields are
// guarded by the coordinator's lock.
type Session struct {
	id          int
	conn        Conn
	connectedAt time.Time

	role          Role
	name          string // login for clients, device name for devices
	authenticated bool

	// device registration
	index int
	kind  int
	host  string
	port  int

	key int

	priority    int
	holdUntil   time.Time
	hasPriority bool

	weatherGood bool
	bop         state.Word
	errs        state.Word
	lastView    state.Word
	viewSent    bool

	messageMask protocol.Severity

	// command sequencing: while busy, commands queue in backlog
	busy    bool
	backlog []string

	// coordinator-initiated requests awaiting a completion, oldest first
	requests []*request

	closed bool
}

func newSession(id int, conn Conn, now time.Time) *Session {
	return &Session{
		id:          id,
		conn:        conn,
		connectedAt: now,
		priority:    -1,
		weatherGood: true,
	}
}

// ID returns the session id assigned at connect time.
func (s *Session) ID() int {
	return s.id
}

func (s *Session) isDevice() bool {
	return s.role == RoleDevice
}

// label identifies the session in logs.
func (s *Session) label() string {
	if s.name == "" {
		return fmt.Sprintf("#%d", s.id)
	}
	return s.name
}

// holdExpired reports whether a time-limited priority bid has run out.
func (s *Session) holdExpired(now time.Time) bool {
	return !s.holdUntil.IsZero() && !now.Before(s.holdUntil)
}

// infoLine describes the session for session listings.
func (s *Session) infoLine() (string, bool) {
	switch s.role {
	case RoleClient:
		mark := '-'
		if s.hasPriority {
			mark = '*'
		}
		return fmt.Sprintf("user %d %d %c %s", s.id, s.priority, mark, s.name), true
	case RoleDevice:
		return fmt.Sprintf("device %d %d %s %s %d %d", s.index, s.id, s.name, s.host, s.port, s.kind), true
	}
	return "", false
}
