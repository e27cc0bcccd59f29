// Package protocol implements the line-oriented text protocol spoken
// between the coordinator and its peers.
//
// Every line is a command name followed by whitespace separated
// parameters. A command is answered by zero or more informational lines and
// one completion line, "OK <code>" or "ERR <code> <text>".
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a parsed inbound line with a parameter cursor.
type Command struct {
	Name   string
	params []string
	pos    int
	line   string
}

// Parse splits a line into a Command. Blank lines are a syntax error.
func Parse(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, Syntax("empty command")
	}
	return &Command{Name: fields[0], params: fields[1:], line: line}, nil
}

// Is reports whether the command has the given name.
func (c *Command) Is(name string) bool {
	return c.Name == name
}

// Line returns the original text of the command.
func (c *Command) Line() string {
	return c.line
}

// Remaining returns the number of unread parameters.
func (c *Command) Remaining() int {
	return len(c.params) - c.pos
}

// NextString consumes the next parameter.
func (c *Command) NextString() (string, error) {
	if c.pos >= len(c.params) {
		return "", Syntax("%s: missing parameter %d", c.Name, c.pos+1)
	}
	p := c.params[c.pos]
	c.pos++
	return p, nil
}

// NextInt consumes the next parameter as a signed integer.
func (c *Command) NextInt() (int, error) {
	s, err := c.NextString()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, Syntax("%s: parameter %d: expected integer, got %q", c.Name, c.pos, s)
	}
	return v, nil
}

// NextUint consumes the next parameter as an unsigned 32-bit value.
// Decimal and 0x-prefixed hexadecimal are accepted.
func (c *Command) NextUint() (uint32, error) {
	s, err := c.NextString()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, Syntax("%s: parameter %d: expected unsigned integer, got %q", c.Name, c.pos, s)
	}
	return uint32(v), nil
}

// Rest consumes all remaining parameters and joins them with single spaces.
func (c *Command) Rest() (string, error) {
	if c.pos >= len(c.params) {
		return "", Syntax("%s: missing text", c.Name)
	}
	s := strings.Join(c.params[c.pos:], " ")
	c.pos = len(c.params)
	return s, nil
}

// End fails if unread parameters remain.
func (c *Command) End() error {
	if c.pos != len(c.params) {
		return Syntax("%s: unexpected parameter %q", c.Name, c.params[c.pos])
	}
	return nil
}

// IsCompletion reports whether line is an OK/ERR completion rather than a
// command.
func IsCompletion(line string) bool {
	name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	return name == "OK" || name == "ERR"
}

// ParseCompletion decodes an OK/ERR line. err is nil for OK lines and a
// classified *Error for ERR lines.
func ParseCompletion(line string) (code int, err error) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) < 2 {
		if len(fields) == 1 && fields[0] == "OK" {
			return CodeOK, nil
		}
		return 0, fmt.Errorf("%w: malformed completion %q", ErrSyntax, line)
	}
	code, convErr := strconv.Atoi(fields[1])
	if convErr != nil {
		return 0, fmt.Errorf("%w: malformed completion code %q", ErrSyntax, fields[1])
	}
	switch fields[0] {
	case "OK":
		return code, nil
	case "ERR":
		text := ""
		if len(fields) == 3 {
			text = fields[2]
		}
		return code, ErrorForCode(code, text)
	}
	return 0, fmt.Errorf("%w: not a completion %q", ErrSyntax, line)
}
