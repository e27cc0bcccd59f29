package coordinator

import (
	"slices"
	"time"

	"github.com/urmzd/centrald/pkg/state"
)

// SessionInfo is a read-only copy of a session.
type SessionInfo struct {
	ID            int
	Role          Role
	Name          string
	Remote        string
	ConnectedAt   time.Time
	Authenticated bool
	Index         int
	Kind          int
	Host          string
	Port          int
	Priority      int
	HoldUntil     time.Time
	HasPriority   bool
	WeatherGood   bool
	Bop           state.Word
	Errors        state.Word
	View          state.Word
}

// Snapshot is a consistent read-only copy of the coordinator state.
type Snapshot struct {
	State             state.Word
	PriorityHolder    int
	PriorityClient    string
	Priority          int
	RequiredDevices   []string
	FailedDevices     []string
	BadWeatherDevices []string
	NextState         state.Phase
	NextStateChange   time.Time
	Sessions          []SessionInfo
}

// Snapshot copies the current state under the coordinator lock.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, bid := c.priorityValues()
	snap := Snapshot{
		State:             c.state,
		PriorityHolder:    c.holder,
		PriorityClient:    client,
		Priority:          bid,
		RequiredDevices:   slices.Clone(c.cfg.RequiredDevices),
		FailedDevices:     slices.Clone(c.failed),
		BadWeatherDevices: slices.Clone(c.badWeather),
		NextState:         c.nextEvent.Next,
		NextStateChange:   c.nextEvent.At,
		Sessions:          make([]SessionInfo, 0, len(c.order)),
	}
	for _, s := range c.order {
		snap.Sessions = append(snap.Sessions, SessionInfo{
			ID:            s.id,
			Role:          s.role,
			Name:          s.name,
			Remote:        s.conn.RemoteAddr(),
			ConnectedAt:   s.connectedAt,
			Authenticated: s.authenticated,
			Index:         s.index,
			Kind:          s.kind,
			Host:          s.host,
			Port:          s.port,
			Priority:      s.priority,
			HoldUntil:     s.holdUntil,
			HasPriority:   s.hasPriority,
			WeatherGood:   s.weatherGood,
			Bop:           s.bop,
			Errors:        s.errs,
			View:          c.stateFor(s),
		})
	}
	return snap
}

// Session returns a copy of one session, or false if it is gone.
func (s Snapshot) Session(id int) (SessionInfo, bool) {
	for _, si := range s.Sessions {
		if si.ID == id {
			return si, true
		}
	}
	return SessionInfo{}, false
}
