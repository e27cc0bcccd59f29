package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/urmzd/centrald/pkg/coordinator"
	"github.com/urmzd/centrald/pkg/ephem"
	"github.com/urmzd/centrald/pkg/peer"
	"github.com/urmzd/centrald/pkg/state"
)

func startServer(t *testing.T) (*coordinator.Coordinator, string) {
	t.Helper()
	eph := ephem.Func(func(now time.Time) ephem.Event {
		return ephem.Event{Current: state.Night, Next: state.Dawn, At: now.Add(time.Hour)}
	})
	auth := coordinator.AuthFunc(func(_ context.Context, login, password string) (bool, error) {
		return login == "obs" && password == "secret", nil
	})
	coord := coordinator.New(coordinator.Config{RequiredDevices: []string{"dome"}}, eph,
		coordinator.WithAuthenticator(auth))
	coord.Start()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := New(coord)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return coord, ln.Addr().String()
}

func dial(t *testing.T, addr string) *peer.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := peer.Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitForLine(t *testing.T, c *peer.Client, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-c.Lines():
			if !ok {
				t.Fatalf("connection closed waiting for %q", want)
			}
			if line == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEnd(t *testing.T) {
	coord, addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dome := dial(t, addr)
	domeID, err := dome.Register(ctx, 1, "dome", 2, "dome.local", 5000)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	obs := dial(t, addr)
	if err := obs.Login(ctx, "obs", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !coord.Snapshot().State.GoodWeather() {
		t.Error("weather bad with the required device connected")
	}

	if err := obs.Priority(ctx, 10, 0); err != nil {
		t.Fatalf("priority: %v", err)
	}
	waitForLine(t, dome, "V priority_client obs")

	// the dome answers the coordinator's info request automatically
	lines, err := obs.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, fmt.Sprintf("device 1 %d dome", domeID)) {
			found = true
		}
	}
	if !found {
		t.Errorf("info listing misses the dome: %v", lines)
	}

	if err := dome.ReportState(ctx, state.BadWeather); err != nil {
		t.Fatalf("state: %v", err)
	}
	waitForLine(t, obs, "V failed_devices dome")

	if err := obs.SetPower(ctx, state.On); err != nil {
		t.Fatalf("on: %v", err)
	}
	if got := coord.Snapshot().State.Power(); got != state.On {
		t.Errorf("power = %v, want on", got)
	}

	_ = dome.Close()
	eventually(t, func() bool { return len(coord.Snapshot().Sessions) == 1 }, "dome disconnect")
}

func TestConnSendNeverBlocks(t *testing.T) {
	client, srv := net.Pipe()
	defer func() { _ = client.Close() }()
	c := &conn{nc: srv, out: make(chan string, 2), stop: make(chan struct{})}

	if !c.Send("S 0") || !c.Send("S 1") {
		t.Fatal("send failed with room in the queue")
	}
	if c.Send("S 2") {
		t.Error("send succeeded on a full queue")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Send("S 3") {
		t.Error("send succeeded after close")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestServeClosesPeersOnCancel(t *testing.T) {
	eph := ephem.Func(func(now time.Time) ephem.Event {
		return ephem.Event{Current: state.Night, Next: state.Dawn, At: now.Add(time.Hour)}
	})
	coord := coordinator.New(coordinator.Config{}, eph)
	coord.Start()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(coord).Serve(ctx, ln) }()

	p := dial(t, ln.Addr().String())
	eventually(t, func() bool { return len(coord.Snapshot().Sessions) == 1 }, "connect")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Error("peer connection left open")
	}
	if n := len(coord.Snapshot().Sessions); n != 0 {
		t.Errorf("%d sessions left after shutdown", n)
	}
}
