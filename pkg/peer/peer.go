// Package peer is a client for the coordinator line protocol. It is used
// by device bridges, operator tools and tests.
package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

var (
	ErrClosed          = errors.New("peer connection closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// InfoHandler answers an info request from the coordinator. A nil error
// replies OK; a *protocol.Error replies with its code.
type InfoHandler func() error

// Client is one connection to the coordinator. Commands are sent one at a
// time; unsolicited lines are delivered on Lines.
type Client struct {
	nc   net.Conn
	info InfoHandler

	writeMu sync.Mutex

	cmdMu   sync.Mutex
	mu      sync.Mutex
	waiting chan reply
	buf     []string

	lines chan string
	done  chan struct{}
	err   error
}

type reply struct {
	lines []string
	err   error
}

// Option configures a Client.
type Option func(*Client)

// WithInfoHandler sets how the client answers coordinator info requests.
func WithInfoHandler(h InfoHandler) Option {
	return func(c *Client) { c.info = h }
}

// WithLineBuffer sets the capacity of the Lines channel.
func WithLineBuffer(n int) Option {
	return func(c *Client) { c.lines = make(chan string, n) }
}

// Dial connects to the coordinator at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(nc, opts...), nil
}

// New wraps an established connection.
func New(nc net.Conn, opts ...Option) *Client {
	c := &Client{
		nc:    nc,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Lines delivers every line that is not a completion. It is closed when
// the connection ends.
func (c *Client) Lines() <-chan string {
	return c.lines
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.nc.Close()
}

// Command sends line and waits for its completion. It returns the lines
// received in between; a failed completion is returned as a
// *protocol.Error.
func (c *Client) Command(ctx context.Context, line string) ([]string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	ch := make(chan reply, 1)
	c.mu.Lock()
	c.waiting = ch
	c.buf = nil
	c.mu.Unlock()

	if err := c.write(line); err != nil {
		c.clearWaiting()
		return nil, err
	}

	select {
	case r := <-ch:
		return r.lines, r.err
	case <-c.done:
		c.clearWaiting()
		return nil, ErrClosed
	case <-ctx.Done():
		c.clearWaiting()
		return nil, ctx.Err()
	}
}

func (c *Client) clearWaiting() {
	c.mu.Lock()
	c.waiting = nil
	c.buf = nil
	c.mu.Unlock()
}

func (c *Client) write(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.lines)
	defer close(c.done)

	sc := bufio.NewScanner(c.nc)
	sc.Buffer(make([]byte, 4096), 64*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case protocol.IsCompletion(line):
			c.complete(line)
		case line == "info":
			c.answerInfo()
		default:
			c.deliver(line)
		}
	}

	err := sc.Err()
	if err == nil {
		err = ErrClosed
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Client) complete(line string) {
	_, err := protocol.ParseCompletion(line)

	c.mu.Lock()
	ch, lines := c.waiting, c.buf
	c.waiting, c.buf = nil, nil
	c.mu.Unlock()

	if ch == nil {
		log.Debug().Str("line", line).Msg("Completion without a command")
		return
	}
	ch <- reply{lines: lines, err: err}
}

func (c *Client) answerInfo() {
	var err error
	if c.info != nil {
		err = c.info()
	}
	line := protocol.OK(protocol.CodeOK)
	if err != nil {
		line = protocol.Err(protocol.AsError(err))
	}
	if werr := c.write(line); werr != nil {
		log.Debug().Err(werr).Msg("Failed to answer info")
	}
}

func (c *Client) deliver(line string) {
	c.mu.Lock()
	if c.waiting != nil {
		c.buf = append(c.buf, line)
	}
	c.mu.Unlock()

	select {
	case c.lines <- line:
	default:
		log.Debug().Str("line", line).Msg("Line buffer full, dropping")
	}
}

// Login declares the connection as a client and authenticates it.
func (c *Client) Login(ctx context.Context, login, password string) error {
	if _, err := c.Command(ctx, "login "+login); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if _, err := c.Command(ctx, "password "+password); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	return nil
}

// Register declares the connection as a device and returns the session id
// the coordinator assigned.
func (c *Client) Register(ctx context.Context, index int, name string, kind int, host string, port int) (int, error) {
	lines, err := c.Command(ctx, fmt.Sprintf("register %d %s %d %s %d", index, name, kind, host, port))
	if err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, protocol.TagAuth+" registered_as "); ok {
			id, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrUnexpectedReply, l)
			}
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: no registered_as line", ErrUnexpectedReply)
}

// ReportState sends the device status word.
func (c *Client) ReportState(ctx context.Context, w state.Word) error {
	_, err := c.Command(ctx, fmt.Sprintf("state %#x", uint32(w)))
	return err
}

// Priority bids for priority. A zero hold keeps the bid indefinitely.
func (c *Client) Priority(ctx context.Context, bid int, hold time.Duration) error {
	_, err := c.Command(ctx, fmt.Sprintf("priority %d %d", bid, int(hold/time.Second)))
	return err
}

// SetPower switches the observatory power mode.
func (c *Client) SetPower(ctx context.Context, m state.PowerMode) error {
	cmd := map[state.PowerMode]string{
		state.On:      "on",
		state.Standby: "standby",
		state.SoftOff: "soft_off",
		state.HardOff: "off",
	}[m]
	if cmd == "" {
		return fmt.Errorf("unknown power mode %d", m)
	}
	_, err := c.Command(ctx, cmd)
	return err
}

// Log submits a message to the coordinator log.
func (c *Client) Log(ctx context.Context, severity protocol.Severity, text string) error {
	_, err := c.Command(ctx, fmt.Sprintf("log %s %s", severity, text))
	return err
}

// MessageMask selects which log severities the coordinator forwards.
func (c *Client) MessageMask(ctx context.Context, mask protocol.Severity) error {
	_, err := c.Command(ctx, fmt.Sprintf("message_mask %d", mask))
	return err
}

// Info requests a full status round and returns the listing.
func (c *Client) Info(ctx context.Context) ([]string, error) {
	return c.Command(ctx, "info")
}
