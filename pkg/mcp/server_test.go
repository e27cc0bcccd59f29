package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/db"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

type fakeStatus struct {
	state    types.StateResponse
	sessions []types.Session
	err      error
}

func (f *fakeStatus) State(context.Context) (*types.StateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.state, nil
}

func (f *fakeStatus) Sessions(context.Context) (*types.ListSessionsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.ListSessionsResponse{Sessions: f.sessions, Count: len(f.sessions)}, nil
}

type fakeMessages struct {
	msgs   []protocol.Message
	filter db.MessageFilter
}

func (f *fakeMessages) Append(msg protocol.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeMessages) Recent(_ context.Context, filter db.MessageFilter) ([]protocol.Message, error) {
	f.filter = filter
	return f.msgs, nil
}

func (f *fakeMessages) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeSwitch struct {
	modes []state.PowerMode
	err   error
}

func (f *fakeSwitch) SetPower(_ context.Context, m state.PowerMode) error {
	f.modes = append(f.modes, m)
	return f.err
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want text", res.Content[0])
	}
	return tc.Text
}

func TestGetState(t *testing.T) {
	status := &fakeStatus{state: types.StateResponse{
		Word:           0x13,
		Phase:          "night",
		Power:          "on",
		GoodWeather:    true,
		PriorityClient: "alice",
		Priority:       10,
	}}
	s := NewServer(status, nil, nil)

	res, err := s.handleGetState(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var out GetStateOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Phase != "night" || out.PriorityClient != "alice" {
		t.Errorf("output = %+v", out)
	}
	if out.Word != "0x00000013" {
		t.Errorf("word = %q, want 0x00000013", out.Word)
	}
}

func TestGetState_SourceError(t *testing.T) {
	s := NewServer(&fakeStatus{err: errors.New("connection refused")}, nil, nil)

	res, err := s.handleGetState(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected a tool error")
	}
}

func TestListSessions_FilterByRole(t *testing.T) {
	status := &fakeStatus{sessions: []types.Session{
		{ID: 1, Role: "client", Name: "alice"},
		{ID: 2, Role: "device", Name: "dome", GoodWeather: true, Device: &types.DeviceReg{Port: 5000}},
	}}
	s := NewServer(status, nil, nil)

	res, _ := s.handleListSessions(context.Background(), call(map[string]any{"role": "device"}))
	var out ListSessionsOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Sessions[0].Name != "dome" || !out.Sessions[0].GoodWeather {
		t.Errorf("sessions = %+v", out.Sessions)
	}
}

func TestListMessages(t *testing.T) {
	store := &fakeMessages{msgs: []protocol.Message{{
		Time:     time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC),
		Source:   "dome",
		Severity: protocol.SeverityWarning,
		Text:     "shutter slow",
	}}}
	s := NewServer(&fakeStatus{}, store, nil)

	res, _ := s.handleListMessages(context.Background(), call(map[string]any{
		"limit":    float64(10),
		"severity": "warning",
		"source":   "dome",
	}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if store.filter.Limit != 10 || store.filter.Severity != protocol.SeverityWarning || store.filter.Source != "dome" {
		t.Errorf("filter = %+v", store.filter)
	}

	var out ListMessagesOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Messages[0].Severity != "warning" {
		t.Errorf("messages = %+v", out.Messages)
	}
}

func TestListMessages_BadSeverity(t *testing.T) {
	s := NewServer(&fakeStatus{}, &fakeMessages{}, nil)

	res, _ := s.handleListMessages(context.Background(), call(map[string]any{"severity": "loud"}))
	if !res.IsError {
		t.Error("expected a tool error")
	}
}

func TestSetPowerMode(t *testing.T) {
	sw := &fakeSwitch{}
	s := NewServer(&fakeStatus{}, nil, sw)

	res, _ := s.handleSetPowerMode(context.Background(), call(map[string]any{"mode": "standby"}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if len(sw.modes) != 1 || sw.modes[0] != state.Standby {
		t.Errorf("modes = %v, want [standby]", sw.modes)
	}

	res, _ = s.handleSetPowerMode(context.Background(), call(map[string]any{"mode": "sideways"}))
	if !res.IsError {
		t.Error("unknown mode should be a tool error")
	}
	res, _ = s.handleSetPowerMode(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Error("missing mode should be a tool error")
	}
}

func TestSetPowerMode_Rejected(t *testing.T) {
	sw := &fakeSwitch{err: protocol.Violation("not authenticated")}
	s := NewServer(&fakeStatus{}, nil, sw)

	res, _ := s.handleSetPowerMode(context.Background(), call(map[string]any{"mode": "on"}))
	if !res.IsError {
		t.Error("coordinator rejection should be a tool error")
	}
}
