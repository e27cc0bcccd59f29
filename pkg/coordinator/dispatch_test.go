package coordinator

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/urmzd/centrald/pkg/state"
)

func TestLoginTwiceRejected(t *testing.T) {
	h := newHarness(t, Config{})
	s, conn := h.client("alice")

	h.c.Receive(s, "login bob")
	if got := last(conn.take()); !strings.HasPrefix(got, "ERR -1 ") {
		t.Errorf("second login: got %q, want ERR -1", got)
	}
	h.c.Receive(s, "register 1 cam 2 host 5000")
	if got := last(conn.take()); !strings.HasPrefix(got, "ERR -1 ") {
		t.Errorf("register after login: got %q, want ERR -1", got)
	}

	si, ok := h.c.Snapshot().Session(s.ID())
	if !ok {
		t.Fatal("session missing from snapshot")
	}
	if si.Role != RoleClient || si.Name != "alice" {
		t.Errorf("session = %v %q, want client alice", si.Role, si.Name)
	}
}

func TestRegisterNameConflict(t *testing.T) {
	h := newHarness(t, Config{})
	h.device("cam")

	s, conn := h.connect()
	h.c.Receive(s, "register 2 cam 2 other 5001")
	if got := last(conn.take()); !strings.HasPrefix(got, "ERR -4 ") {
		t.Fatalf("duplicate register: got %q, want ERR -4", got)
	}
	si, _ := h.c.Snapshot().Session(s.ID())
	if si.Role != RoleUndeclared {
		t.Errorf("role after conflict = %v, want undeclared", si.Role)
	}

	h.c.Receive(s, "register 2 cam2 2 other 5001")
	if got := last(conn.take()); got != "OK 0" {
		t.Errorf("register with a free name: got %q", got)
	}
}

func TestRegisterReplySequence(t *testing.T) {
	h := newHarness(t, Config{})
	holder, _ := h.device("mount")
	h.c.Receive(holder, "priority 10")

	s, conn := h.connect()
	h.c.Receive(s, "register 3 cam 2 cam.local 5000")
	lines := conn.take()
	if len(lines) < 4 {
		t.Fatalf("register reply too short: %v", lines)
	}
	if !strings.HasPrefix(lines[0], "S ") {
		t.Errorf("line 0 = %q, want status", lines[0])
	}
	if want := fmt.Sprintf("P %d 0", holder.ID()); lines[1] != want {
		t.Errorf("line 1 = %q, want %q", lines[1], want)
	}
	if want := fmt.Sprintf("A registered_as %d", s.ID()); lines[2] != want {
		t.Errorf("line 2 = %q, want %q", lines[2], want)
	}
	if want := fmt.Sprintf("device 3 %d cam cam.local 5000 2", s.ID()); !hasLine(lines, want) {
		t.Errorf("missing own device line %q in %v", want, lines)
	}
	if last(lines) != "OK 0" {
		t.Errorf("last line = %q, want OK 0", last(lines))
	}
}

func TestUndeclaredSessionCommands(t *testing.T) {
	h := newHarness(t, Config{})
	s, conn := h.connect()

	h.c.Receive(s, "on")
	if got := last(conn.take()); !strings.HasPrefix(got, "ERR -1 ") {
		t.Errorf("on while undeclared: got %q", got)
	}
	h.c.Receive(s, "bogus 1 2")
	if got := last(conn.take()); !strings.HasPrefix(got, "ERR -1 ") {
		t.Errorf("unknown command: got %q", got)
	}
	h.c.Receive(s, "message_mask 4")
	if got := last(conn.take()); got != "OK 0" {
		t.Errorf("message_mask: got %q", got)
	}
	if h.c.Snapshot().State.Power() != state.HardOff {
		t.Error("rejected command changed the power mode")
	}
}

func TestSyntaxErrorsAreDistinct(t *testing.T) {
	h := newHarness(t, Config{})
	s, conn := h.client("alice")

	cases := []string{
		"priority abc",
		"priority 10 -5",
		"prioritydeferred 10",
		"on now",
		"message_mask 0x10",
		"log loud hello",
	}
	for _, line := range cases {
		h.c.Receive(s, line)
		if got := last(conn.take()); !strings.HasPrefix(got, "ERR -2 ") {
			t.Errorf("%q: got %q, want ERR -2", line, got)
		}
	}

	snap := h.c.Snapshot()
	if snap.PriorityHolder != noHolder {
		t.Errorf("holder = %d after failed priority commands", snap.PriorityHolder)
	}
	if snap.State.Power() != state.HardOff {
		t.Errorf("power = %v after failed command", snap.State.Power())
	}
}

func TestClientCommandsNeedPassword(t *testing.T) {
	h := newHarness(t, Config{})
	s, conn := h.connect()
	h.c.Receive(s, "login alice")
	conn.take()

	h.c.Receive(s, "on")
	if got := last(conn.take()); !strings.HasPrefix(got, "ERR -1 ") {
		t.Errorf("on before password: got %q", got)
	}
	if h.c.Snapshot().State.Power() != state.HardOff {
		t.Error("unauthenticated client switched the system on")
	}
}

func TestPasswordAccepted(t *testing.T) {
	h := newHarness(t, Config{})
	s, conn := h.connect()
	h.c.Receive(s, "login alice")
	h.c.Receive(s, "password pw-alice")

	lines := conn.take()
	if !hasLine(lines, fmt.Sprintf("logged_as %d", s.ID())) {
		t.Errorf("missing logged_as in %v", lines)
	}
	if !hasPrefix(lines, "S ") {
		t.Errorf("missing status in %v", lines)
	}
	if last(lines) != "OK 0" {
		t.Errorf("last = %q, want OK 0", last(lines))
	}
}

func TestInvalidPasswordReplyIsDelayed(t *testing.T) {
	h := newHarness(t, Config{AuthPenalty: 5 * time.Second})
	s, conn := h.connect()
	h.c.Receive(s, "login alice")
	conn.take()

	h.c.Receive(s, "password wrong")
	h.c.Receive(s, "ready")
	if got := conn.take(); hasPrefix(got, "OK") || hasPrefix(got, "ERR") {
		t.Fatalf("completion sent before the penalty: %v", got)
	}

	// other sessions are served while alice waits
	h.client("bob")

	h.tickAfter(4 * time.Second)
	if got := conn.take(); hasPrefix(got, "ERR") {
		t.Fatalf("completion sent early: %v", got)
	}

	h.tickAfter(time.Second)
	var completions []string
	for _, l := range conn.take() {
		if strings.HasPrefix(l, "OK") || strings.HasPrefix(l, "ERR") {
			completions = append(completions, l)
		}
	}
	if len(completions) != 2 {
		t.Fatalf("completions = %v, want password then ready", completions)
	}
	if completions[0] != "ERR -3 invalid login or password" {
		t.Errorf("password completion = %q", completions[0])
	}
	if !strings.HasPrefix(completions[1], "ERR -1 ") {
		t.Errorf("queued ready completion = %q, want ERR -1", completions[1])
	}
}

func TestKeyAndAuthorize(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")
	other, _ := h.client("other")
	cam, camConn := h.device("cam")

	h.c.Receive(obs, "key cam")
	lines := obsConn.take()
	if !hasLine(lines, "authorization_key cam 42") || last(lines) != "OK 0" {
		t.Fatalf("key reply = %v", lines)
	}

	h.c.Receive(obs, "key nosuch")
	if got := last(obsConn.take()); !strings.HasPrefix(got, "ERR -5 ") {
		t.Errorf("key for unknown device: got %q", got)
	}

	h.c.Receive(cam, fmt.Sprintf("authorize %d 42", obs.ID()))
	lines = camConn.take()
	if !hasLine(lines, fmt.Sprintf("A authorization_ok %d", obs.ID())) || last(lines) != "OK 0" {
		t.Errorf("valid key: %v", lines)
	}

	h.c.Receive(cam, fmt.Sprintf("authorize %d 41", obs.ID()))
	lines = camConn.take()
	if !hasLine(lines, fmt.Sprintf("A authorization_failed %d", obs.ID())) || !strings.HasPrefix(last(lines), "ERR -3 ") {
		t.Errorf("wrong key: %v", lines)
	}

	h.c.Receive(cam, fmt.Sprintf("authorize %d 42", other.ID()))
	lines = camConn.take()
	if !hasLine(lines, fmt.Sprintf("A authorization_failed %d", other.ID())) || !strings.HasPrefix(last(lines), "ERR -3 ") {
		t.Errorf("client without key: %v", lines)
	}

	h.c.Receive(cam, "authorize 99 42")
	if got := last(camConn.take()); !strings.HasPrefix(got, "ERR -5 ") {
		t.Errorf("vanished client: got %q", got)
	}
}

func TestPowerCommands(t *testing.T) {
	h := newHarness(t, Config{})
	obs, obsConn := h.client("obs")
	_, watcherConn := h.client("watcher")

	cases := []struct {
		cmd  string
		want state.PowerMode
	}{
		{"on", state.On},
		{"standby", state.Standby},
		{"soft_off", state.SoftOff},
		{"off", state.HardOff},
	}
	for _, tc := range cases {
		watcherConn.take()
		h.c.Receive(obs, tc.cmd)
		if got := last(obsConn.take()); got != "OK 0" {
			t.Errorf("%s: got %q", tc.cmd, got)
		}
		snap := h.c.Snapshot()
		if snap.State.Power() != tc.want {
			t.Errorf("%s: power = %v, want %v", tc.cmd, snap.State.Power(), tc.want)
		}
		if !hasLine(watcherConn.take(), fmt.Sprintf("S %d", uint32(snap.State))) {
			t.Errorf("%s: watcher did not receive the new state", tc.cmd)
		}
	}

	if !h.sink.contains("State switched to on by obs") {
		t.Error("power switch not journaled")
	}
	if !h.sink.contains("State changed from") {
		t.Error("state transition not journaled")
	}
}

func TestBacklogIsBounded(t *testing.T) {
	h := newHarness(t, Config{AuthPenalty: 5 * time.Second})
	s, conn := h.connect()
	h.c.Receive(s, "login alice")
	h.c.Receive(s, "password wrong")
	conn.take()

	for i := 0; i < maxBacklog; i++ {
		h.c.Receive(s, "ready")
	}
	if got := conn.take(); hasPrefix(got, "ERR") {
		t.Fatalf("queued command refused early: %v", got)
	}

	h.c.Receive(s, "ready")
	if got := conn.take(); !hasLine(got, "ERR -1 command backlog full") {
		t.Errorf("overflow reply = %v, want ERR -1 command backlog full", got)
	}

	h.tickAfter(5 * time.Second)
	if n := countPrefix(conn.take(), "ERR"); n != maxBacklog+1 {
		t.Errorf("completions after penalty = %d, want %d", n, maxBacklog+1)
	}
}
