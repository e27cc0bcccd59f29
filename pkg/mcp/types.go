package mcp

import (
	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/protocol"
)

// --- Get State Tool ---

// GetStateOutput is the output for the get_state tool
type GetStateOutput struct {
	Phase             string   `json:"phase" jsonschema:"description=Current phase of the day"`
	Power             string   `json:"power" jsonschema:"description=Commanded power mode"`
	GoodWeather       bool     `json:"good_weather" jsonschema:"description=Whether every required device reports good weather"`
	FailedDevices     []string `json:"failed_devices" jsonschema:"description=Required devices that are missing or report bad weather"`
	BadWeatherDevices []string `json:"bad_weather_devices" jsonschema:"description=Optional devices reporting bad weather"`
	Bop               uint32   `json:"bop" jsonschema:"description=Aggregated block-of-operation bits"`
	PriorityClient    string   `json:"priority_client" jsonschema:"description=Name of the session holding priority"`
	Priority          int      `json:"priority" jsonschema:"description=Winning priority bid"`
	NextState         string   `json:"next_state" jsonschema:"description=Phase that follows"`
	NextStateChange   string   `json:"next_state_change" jsonschema:"description=ISO8601 time of the next phase change"`
	Word              string   `json:"word" jsonschema:"description=Raw state word in hex"`
}

// --- List Sessions Tool ---

// ListSessionsOutput is the output for the list_sessions tool
type ListSessionsOutput struct {
	Sessions []SessionInfo `json:"sessions" jsonschema:"description=Connected sessions"`
	Count    int           `json:"count" jsonschema:"description=Number of sessions"`
}

// SessionInfo represents a session in tool outputs
type SessionInfo struct {
	ID          int    `json:"id" jsonschema:"description=Session id"`
	Role        string `json:"role" jsonschema:"description=client, device or undeclared"`
	Name        string `json:"name,omitempty" jsonschema:"description=Login or device name"`
	Remote      string `json:"remote" jsonschema:"description=Peer address"`
	Priority    int    `json:"priority" jsonschema:"description=Current priority bid"`
	HasPriority bool   `json:"has_priority" jsonschema:"description=Whether the session holds priority"`
	GoodWeather bool   `json:"good_weather,omitempty" jsonschema:"description=Weather reported by a device"`
}

// --- List Messages Tool ---

// ListMessagesOutput is the output for the list_messages tool
type ListMessagesOutput struct {
	Messages []MessageInfo `json:"messages" jsonschema:"description=Journal entries, newest first"`
	Count    int           `json:"count" jsonschema:"description=Number of messages"`
}

// MessageInfo represents a journal entry in tool outputs
type MessageInfo struct {
	Time     string `json:"time" jsonschema:"description=ISO8601 timestamp"`
	Source   string `json:"source" jsonschema:"description=Client, device or centrald"`
	Severity string `json:"severity" jsonschema:"description=error, warning, info or debug"`
	Text     string `json:"text" jsonschema:"description=Message text"`
}

// --- Set Power Mode Tool ---

// SetPowerModeOutput is the output for the set_power_mode tool
type SetPowerModeOutput struct {
	Success bool   `json:"success" jsonschema:"description=Whether the coordinator accepted the command"`
	Message string `json:"message" jsonschema:"description=Status message"`
}

// --- Helper conversions ---

// SessionToInfo converts an API session to SessionInfo
func SessionToInfo(s types.Session) SessionInfo {
	return SessionInfo{
		ID:          s.ID,
		Role:        s.Role,
		Name:        s.Name,
		Remote:      s.Remote,
		Priority:    s.Priority,
		HasPriority: s.HasPriority,
		GoodWeather: s.Device != nil && s.GoodWeather,
	}
}

// MessageToInfo converts a journal entry to MessageInfo
func MessageToInfo(m protocol.Message) MessageInfo {
	return MessageInfo{
		Time:     m.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Source:   m.Source,
		Severity: m.Severity.String(),
		Text:     m.Text,
	}
}
