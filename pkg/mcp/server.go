package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/db"
	"github.com/urmzd/centrald/pkg/state"
)

// StatusSource reads the coordinator's published state.
type StatusSource interface {
	State(ctx context.Context) (*types.StateResponse, error)
	Sessions(ctx context.Context) (*types.ListSessionsResponse, error)
}

// PowerSwitch issues power-mode commands to the coordinator.
type PowerSwitch interface {
	SetPower(ctx context.Context, mode state.PowerMode) error
}

// Server wraps the MCP server with centrald's operator tools
type Server struct {
	mcpServer *server.MCPServer
	status    StatusSource
	messages  db.MessageStore
	power     PowerSwitch
}

// NewServer creates a new MCP server. power may be nil, in which case the
// set_power_mode tool is not offered.
func NewServer(status StatusSource, messages db.MessageStore, power PowerSwitch) *Server {
	s := &Server{
		status:   status,
		messages: messages,
		power:    power,
	}

	s.mcpServer = server.NewMCPServer(
		"centrald",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
