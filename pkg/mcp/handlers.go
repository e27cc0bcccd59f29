package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/centrald/pkg/db"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

const defaultMessageLimit = 50

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.status.State(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read state: %s", err)), nil
	}

	out := GetStateOutput{
		Phase:             st.Phase,
		Power:             st.Power,
		GoodWeather:       st.GoodWeather,
		FailedDevices:     st.FailedDevices,
		BadWeatherDevices: st.BadWeatherDevices,
		Bop:               st.Bop,
		PriorityClient:    st.PriorityClient,
		Priority:          st.Priority,
		NextState:         st.NextState,
		NextStateChange:   st.NextStateChange.UTC().Format(time.RFC3339),
		Word:              fmt.Sprintf("0x%08x", st.Word),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.status.Sessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %s", err)), nil
	}

	role, _ := request.GetArguments()["role"].(string)

	infos := make([]SessionInfo, 0, len(list.Sessions))
	for _, sess := range list.Sessions {
		if role != "" && sess.Role != role {
			continue
		}
		infos = append(infos, SessionToInfo(sess))
	}

	out := ListSessionsOutput{
		Sessions: infos,
		Count:    len(infos),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	f := db.MessageFilter{Limit: defaultMessageLimit}
	if l, ok := args["limit"].(float64); ok && l > 0 {
		f.Limit = int(l)
	}
	if sev, ok := args["severity"].(string); ok && sev != "" {
		level, err := protocol.ParseSeverity(sev)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.Severity = level
	}
	if src, ok := args["source"].(string); ok {
		f.Source = src
	}
	if m, ok := args["since_minutes"].(float64); ok && m > 0 {
		f.Since = time.Now().Add(-time.Duration(m * float64(time.Minute)))
	}

	msgs, err := s.messages.Recent(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read messages: %s", err)), nil
	}

	infos := make([]MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		infos = append(infos, MessageToInfo(m))
	}

	out := ListMessagesOutput{
		Messages: infos,
		Count:    len(infos),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleSetPowerMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := requiredString(request, "mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := state.ParsePowerMode(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.power.SetPower(ctx, mode); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to switch to %s: %s", mode, err)), nil
	}

	out := SetPowerModeOutput{
		Success: true,
		Message: fmt.Sprintf("Power mode set to %s", mode),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- helpers ---

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
