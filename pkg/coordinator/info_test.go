package coordinator

import (
	"strings"
	"testing"
	"time"
)

func TestInfoWaitsForEveryDevice(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")
	d1, d1Conn := h.device("d1")
	d2, d2Conn := h.device("d2")
	obsConn.take()
	d1Conn.take()
	d2Conn.take()

	h.c.Receive(obs, "info")
	lines := obsConn.take()
	if hasPrefix(lines, "OK") {
		t.Fatalf("info completed before devices replied: %v", lines)
	}
	for _, want := range []string{"user ", "device 1 ", "V priority_client", "V next_state "} {
		if !hasPrefix(lines, want) {
			t.Errorf("listing misses %q: %v", want, lines)
		}
	}
	if got := d1Conn.take(); !hasLine(got, "info") {
		t.Errorf("d1 not asked: %v", got)
	}
	if got := d2Conn.take(); !hasLine(got, "info") {
		t.Errorf("d2 not asked: %v", got)
	}

	h.c.Receive(d1, "OK 0")
	if got := obsConn.take(); len(got) != 0 {
		t.Fatalf("obs got %v with d2 outstanding", got)
	}

	// a failed reply still counts as an answer
	h.c.Receive(d2, "ERR -1 busy")
	lines = obsConn.take()
	if len(lines) != 3 {
		t.Fatalf("completion = %v, want S, B, OK", lines)
	}
	if !strings.HasPrefix(lines[0], "S ") || !strings.HasPrefix(lines[1], "B ") || lines[2] != "OK 0" {
		t.Errorf("completion = %v, want S, B, OK", lines)
	}
}

func TestInfoWithoutDevicesCompletesImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")

	h.c.Receive(obs, "info")
	lines := obsConn.take()
	if len(lines) != 3 {
		t.Fatalf("lines = %v, want S, B, OK", lines)
	}
	if !strings.HasPrefix(lines[0], "S ") || !strings.HasPrefix(lines[1], "B ") || lines[2] != "OK 0" {
		t.Errorf("completion = %v, want S, B, OK", lines)
	}
}

func TestInfoTimeout(t *testing.T) {
	h := newHarness(t, Config{InfoTimeout: 30 * time.Second})
	obs, obsConn := h.client("obs")
	d1, _ := h.device("d1")
	d2, _ := h.device("d2")
	obsConn.take()

	h.c.Receive(obs, "info")
	h.c.Receive(d1, "OK 0")
	obsConn.take()

	h.tickAfter(29 * time.Second)
	if got := obsConn.take(); hasPrefix(got, "OK") {
		t.Fatalf("completed before the timeout: %v", got)
	}
	h.tickAfter(time.Second)
	if got := last(obsConn.take()); got != "OK 0" {
		t.Fatalf("after timeout last = %q, want OK 0", got)
	}
	if !h.sink.contains("device d2 did not answer info") {
		t.Error("timeout not journaled")
	}

	// the late reply is matched to the expired request and dropped
	h.c.Receive(d2, "OK 0")
	if got := obsConn.take(); len(got) != 0 {
		t.Errorf("late reply reached obs: %v", got)
	}

	h.c.Receive(obs, "info")
	h.c.Receive(d1, "OK 0")
	h.c.Receive(d2, "OK 0")
	if got := last(obsConn.take()); got != "OK 0" {
		t.Errorf("second info: last = %q, want OK 0", got)
	}
}

func TestInfoDeviceDisconnect(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")
	d1, _ := h.device("d1")
	d2, _ := h.device("d2")

	h.c.Receive(obs, "info")
	h.c.Receive(d1, "OK 0")
	obsConn.take()

	h.c.Disconnect(d2)
	if got := last(obsConn.take()); got != "OK 0" {
		t.Errorf("last = %q, want OK 0", got)
	}
}

func TestInfoBacklogsLaterCommands(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")
	d1, _ := h.device("d1")
	obsConn.take()

	h.c.Receive(obs, "info")
	h.c.Receive(obs, "priority 5")
	h.c.Receive(obs, "ready")
	lines := obsConn.take()
	if hasPrefix(lines, "OK") || hasPrefix(lines, "P ") {
		t.Fatalf("queued commands ran early: %v", lines)
	}
	if h.c.Snapshot().PriorityHolder != noHolder {
		t.Fatal("queued priority request applied early")
	}

	h.c.Receive(d1, "OK 0")
	lines = obsConn.take()
	if n := countPrefix(lines, "OK 0"); n != 3 {
		t.Errorf("completions = %d, want 3: %v", n, lines)
	}
	if h.c.Snapshot().PriorityHolder != obs.ID() {
		t.Error("queued priority request not applied")
	}
}

func TestInfoFromDeviceAsksOnlyBlockingDevices(t *testing.T) {
	h := newHarness(t, Config{Blocks: map[string][]string{"T0": {"C0"}}})
	t0, t0Conn := h.device("T0")
	c0, c0Conn := h.device("C0")
	_, c1Conn := h.device("C1")
	t0Conn.take()
	c0Conn.take()
	c1Conn.take()

	h.c.Receive(t0, "info")
	if !hasLine(c0Conn.take(), "info") {
		t.Error("C0 not asked")
	}
	if hasLine(c1Conn.take(), "info") {
		t.Error("C1 asked although T0 is not blocked by it")
	}

	h.c.Receive(c0, "OK 0")
	if got := last(t0Conn.take()); got != "OK 0" {
		t.Errorf("last = %q, want OK 0", got)
	}
}

func TestCompletionsBypassBusyDevice(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")
	a, aConn := h.device("a")
	b, _ := h.device("b")
	obsConn.take()

	// a waits on b
	h.c.Receive(a, "info")
	// obs asks both a and b while a is suspended
	h.c.Receive(obs, "info")

	h.c.Receive(a, "OK 0")
	h.c.Receive(b, "OK 0") // answers a
	if got := last(aConn.take()); got != "OK 0" {
		t.Errorf("a: last = %q, want OK 0", got)
	}
	h.c.Receive(b, "OK 0") // answers obs
	if got := last(obsConn.take()); got != "OK 0" {
		t.Errorf("obs: last = %q, want OK 0", got)
	}
}

func TestInfoOriginDisconnect(t *testing.T) {
	h := newHarness(t, Config{})
	obs, _ := h.client("obs")
	d1, d1Conn := h.device("d1")

	h.c.Receive(obs, "info")
	h.c.Disconnect(obs)
	h.c.Receive(d1, "OK 0")

	d1Conn.take()
	h.c.Receive(d1, "info")
	if got := last(d1Conn.take()); got != "OK 0" {
		t.Errorf("d1 info with no other device: last = %q", got)
	}
	if len(h.c.infos) != 0 {
		t.Errorf("%d info requests left pending", len(h.c.infos))
	}
}
