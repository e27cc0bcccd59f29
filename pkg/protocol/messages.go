package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urmzd/centrald/pkg/state"
)

// Outbound line tags.
const (
	TagStatus   = "S"
	TagPriority = "P"
	TagBop      = "B"
	TagValue    = "V"
	TagAuth     = "A"
	TagMessage  = "M"
)

// Severity is a log message level. Levels are single bits so a session can
// subscribe to any combination through its message mask.
type Severity uint8

const (
	SeverityError   Severity = 0x01
	SeverityWarning Severity = 0x02
	SeverityInfo    Severity = 0x04
	SeverityDebug   Severity = 0x08

	SeverityAll Severity = 0x0f
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityDebug:
		return "debug"
	}
	return fmt.Sprintf("severity(%#x)", uint8(s))
}

// Passes reports whether a session with the given mask wants s.
func (s Severity) Passes(mask Severity) bool {
	return s&mask != 0
}

// ParseSeverity accepts a level name or its numeric value.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(v) {
	case "error":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	case "debug":
		return SeverityDebug, nil
	}
	n, err := strconv.ParseUint(v, 0, 8)
	if err != nil {
		return 0, Syntax("unknown severity %q", v)
	}
	switch s := Severity(n); s {
	case SeverityError, SeverityWarning, SeverityInfo, SeverityDebug:
		return s, nil
	}
	return 0, Syntax("severity %q is not a single level", v)
}

// Message is a free-text log entry tagged with its source and severity.
type Message struct {
	Time     time.Time
	Source   string
	Severity Severity
	Text     string
}

// Line renders the message as an outbound M line.
func (m Message) Line() string {
	return fmt.Sprintf("%s %d.%03d %s %d %s", TagMessage,
		m.Time.Unix(), m.Time.Nanosecond()/int(time.Millisecond),
		m.Source, uint8(m.Severity), m.Text)
}

// ParseMessage decodes an M line produced by Line.
func ParseMessage(line string) (Message, error) {
	fields := strings.SplitN(line, " ", 5)
	if len(fields) < 5 || fields[0] != TagMessage {
		return Message{}, Syntax("malformed message line %q", line)
	}
	secs, frac, _ := strings.Cut(fields[1], ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return Message{}, Syntax("malformed message time %q", fields[1])
	}
	ms, _ := strconv.Atoi(frac)
	sev, err := ParseSeverity(fields[3])
	if err != nil {
		return Message{}, err
	}
	return Message{
		Time:     time.Unix(sec, int64(ms)*int64(time.Millisecond)),
		Source:   fields[2],
		Severity: sev,
		Text:     fields[4],
	}, nil
}

// OK renders a successful completion.
func OK(code int) string {
	return fmt.Sprintf("OK %d", code)
}

// Err renders a failed completion.
func Err(e *Error) string {
	return fmt.Sprintf("ERR %d %s", e.Code, e.Text)
}

// Status renders a state word update.
func Status(w state.Word) string {
	return fmt.Sprintf("%s %d", TagStatus, uint32(w))
}

// Bop renders a per-connection state view including its BOP mask.
func Bop(w state.Word) string {
	return fmt.Sprintf("%s %d", TagBop, uint32(w))
}

// Priority renders a priority holder change. timeout is a unix time, 0
// when the hold does not expire.
func Priority(holder int, timeout int64) string {
	return fmt.Sprintf("%s %d %d", TagPriority, holder, timeout)
}

// Value renders a named coordinator value.
func Value(name string, values ...string) string {
	if len(values) == 0 {
		return fmt.Sprintf("%s %s", TagValue, name)
	}
	return fmt.Sprintf("%s %s %s", TagValue, name, strings.Join(values, " "))
}

// Auth renders an authorization result line.
func Auth(name string, value int) string {
	return fmt.Sprintf("%s %s %d", TagAuth, name, value)
}
