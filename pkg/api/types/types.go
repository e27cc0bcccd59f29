package types

import "time"

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Sessions  int       `json:"sessions"`
	Timestamp time.Time `json:"timestamp"`
}

// StateResponse is returned from GET /state
type StateResponse struct {
	Word              uint32    `json:"word"`
	Description       string    `json:"description"`
	Phase             string    `json:"phase"`
	Power             string    `json:"power"`
	GoodWeather       bool      `json:"good_weather"`
	Bop               uint32    `json:"bop"`
	DeviceErrors      uint32    `json:"device_errors"`
	PriorityHolder    int       `json:"priority_holder"`
	PriorityClient    string    `json:"priority_client"`
	Priority          int       `json:"priority"`
	RequiredDevices   []string  `json:"required_devices"`
	FailedDevices     []string  `json:"failed_devices"`
	BadWeatherDevices []string  `json:"bad_weather_devices"`
	NextState         string    `json:"next_state"`
	NextStateChange   time.Time `json:"next_state_change"`
}

// Session describes one connected peer
type Session struct {
	ID            int        `json:"id"`
	Role          string     `json:"role"`
	Name          string     `json:"name,omitempty"`
	Remote        string     `json:"remote"`
	ConnectedAt   time.Time  `json:"connected_at"`
	Authenticated bool       `json:"authenticated,omitempty"`
	Device        *DeviceReg `json:"device,omitempty"`
	Priority      int        `json:"priority"`
	HoldUntil     *time.Time `json:"hold_until,omitempty"`
	HasPriority   bool       `json:"has_priority"`
	GoodWeather   bool       `json:"good_weather"`
	Bop           uint32     `json:"bop"`
	Errors        uint32     `json:"errors"`
	View          uint32     `json:"view"`
}

// DeviceReg holds what a device declared at registration
type DeviceReg struct {
	Index int    `json:"index"`
	Kind  int    `json:"kind"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
}

// ListSessionsResponse is returned from GET /sessions
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Count    int       `json:"count"`
}

// SessionResponse is returned from GET /sessions/:id
type SessionResponse struct {
	Session Session `json:"session"`
}

// Message is one journal entry
type Message struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Severity string    `json:"severity"`
	Text     string    `json:"text"`
}

// ListMessagesResponse is returned from GET /messages
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}
