// Package server carries the coordinator's line protocol over TCP. Every
// connection gets a reader goroutine feeding the coordinator and a writer
// goroutine draining a bounded outbound queue.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/coordinator"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 10 * time.Second
	maxLineLength       = 64 * 1024
)

// Server accepts peer connections for a coordinator.
type Server struct {
	coord        *coordinator.Coordinator
	queueSize    int
	writeTimeout time.Duration

	mu    sync.Mutex
	ln    net.Listener
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithQueueSize bounds the number of outbound lines buffered per peer.
// A peer that falls further behind is disconnected.
func WithQueueSize(n int) Option {
	return func(s *Server) { s.queueSize = n }
}

// WithWriteTimeout limits how long a single write to a peer may block.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// New creates a Server for coord.
func New(coord *coordinator.Coordinator, opts ...Option) *Server {
	s := &Server{
		coord:        coord,
		queueSize:    defaultQueueSize,
		writeTimeout: defaultWriteTimeout,
		conns:        make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes
// every connection and waits for their goroutines.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log.Info().Str("address", ln.Addr().String()).Msg("Accepting peers")

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var err error
	for {
		var nc net.Conn
		nc, err = ln.Accept()
		if err != nil {
			break
		}
		s.handle(nc)
	}

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return fmt.Errorf("accept: %w", err)
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handle(nc net.Conn) {
	c := &conn{
		nc:      nc,
		out:     make(chan string, s.queueSize),
		stop:    make(chan struct{}),
		timeout: s.writeTimeout,
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	sess := s.coord.Connect(c)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		c.readLoop(s.coord, sess)

		s.coord.Disconnect(sess)
		_ = c.Close()

		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
}

// conn is the transport side of one session.
type conn struct {
	nc      net.Conn
	out     chan string
	timeout time.Duration

	stop    chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// Send queues a line without blocking.
func (c *conn) Send(line string) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.out <- line:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the socket, which ends the reader.
func (c *conn) Close() error {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true
	close(c.stop)
	return c.nc.Close()
}

func (c *conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

func (c *conn) readLoop(coord *coordinator.Coordinator, sess *coordinator.Session) {
	sc := bufio.NewScanner(c.nc)
	sc.Buffer(make([]byte, 4096), maxLineLength)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		coord.Receive(sess, line)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Int("session", sess.ID()).Msg("Read failed")
	}
}

func (c *conn) writeLoop() {
	w := bufio.NewWriter(c.nc)
	for {
		select {
		case <-c.stop:
			return
		case line := <-c.out:
			if err := c.write(w, line); err != nil {
				log.Debug().Err(err).Str("remote", c.RemoteAddr()).Msg("Write failed")
				_ = c.Close()
				return
			}
		}
	}
}

// write buffers line and flushes once the queue is drained.
func (c *conn) write(w *bufio.Writer, line string) error {
	if c.timeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if _, err := w.WriteString(line + "\n"); err != nil {
		return err
	}
	if len(c.out) > 0 {
		return nil
	}
	return w.Flush()
}
