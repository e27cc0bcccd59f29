package handlers

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/centrald/pkg/protocol"
)

const eventBuffer = 256

// EventsHandler streams coordinator broadcasts to HTTP observers
type EventsHandler struct {
	coord     Coordinator
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(coord Coordinator) *EventsHandler {
	return &EventsHandler{coord: coord, heartbeat: 30 * time.Second}
}

// observer is a coordinator connection backed by a channel. A full channel
// makes the coordinator drop the observer like any slow peer.
type observer struct {
	remote string
	lines  chan string

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newObserver(remote string) *observer {
	return &observer{
		remote: remote,
		lines:  make(chan string, eventBuffer),
		done:   make(chan struct{}),
	}
}

func (o *observer) Send(line string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.lines <- line:
		return true
	default:
		return false
	}
}

func (o *observer) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
	return nil
}

func (o *observer) RemoteAddr() string {
	return o.remote
}

// Events handles GET /events (SSE stream)
// @Summary      Subscribe to coordinator broadcasts
// @Description  Server-Sent Events stream of status, priority, BOP, value, authorization and log lines
// @Tags         events
// @Produce      text/event-stream
// @Param        message_mask  query     string  false  "Severity mask for log messages (default 0x0f)"
// @Success      200           {string}  string  "SSE event stream"
// @Failure      400           {object}  types.ErrorResponse  "Invalid mask"
// @Router       /events [get]
func (h *EventsHandler) Events(c *gin.Context) {
	mask := protocol.SeverityAll
	if v := c.Query("message_mask"); v != "" {
		m, err := parseSeverityMask(v)
		if err != nil {
			badQuery(c, err.Error())
			return
		}
		mask = m
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	obs := newObserver("http:" + c.ClientIP())
	sess := h.coord.Connect(obs)
	defer h.coord.Disconnect(sess)
	h.coord.Receive(sess, "message_mask "+strconv.Itoa(int(mask)))

	sendSSEEvent(c.Writer, "connected", map[string]any{
		"timestamp": time.Now(),
		"session":   sess.ID(),
	})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case <-obs.done:
			return

		case line := <-obs.lines:
			if protocol.IsCompletion(line) {
				continue
			}
			tag, rest, _ := strings.Cut(line, " ")
			sendSSEEvent(c.Writer, eventType(tag), map[string]any{
				"line":      line,
				"data":      rest,
				"timestamp": time.Now(),
			})
			c.Writer.Flush()

		case <-ticker.C:
			sendSSEEvent(c.Writer, "heartbeat", map[string]any{
				"timestamp": time.Now(),
			})
			c.Writer.Flush()
		}
	}
}

func eventType(tag string) string {
	switch tag {
	case protocol.TagStatus:
		return "status"
	case protocol.TagPriority:
		return "priority"
	case protocol.TagBop:
		return "bop"
	case protocol.TagValue:
		return "value"
	case protocol.TagAuth:
		return "auth"
	case protocol.TagMessage:
		return "message"
	}
	return "session"
}

// sendSSEEvent writes an SSE event to the response
func sendSSEEvent(w io.Writer, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	io.WriteString(w, "event: "+eventType+"\n")
	io.WriteString(w, "data: "+string(jsonData)+"\n\n")
}
