package mcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_state",
			mcp.WithDescription("Get the observatory state: phase, power mode, weather verdict, BOP bits and priority holder"),
		),
		s.handleGetState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List the clients and devices connected to the coordinator"),
			mcp.WithString("role",
				mcp.Description("Only sessions with this role"),
				mcp.Enum("client", "device", "undeclared"),
			),
		),
		s.handleListSessions,
	)

	if s.messages != nil {
		s.mcpServer.AddTool(
			mcp.NewTool("list_messages",
				mcp.WithDescription("Read the coordinator message journal, newest first"),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of messages (default 50)"),
				),
				mcp.WithString("severity",
					mcp.Description("Only messages of this level"),
					mcp.Enum("error", "warning", "info", "debug"),
				),
				mcp.WithString("source",
					mcp.Description("Only messages from this client or device"),
				),
				mcp.WithNumber("since_minutes",
					mcp.Description("Only messages from the last N minutes"),
				),
			),
			s.handleListMessages,
		)
	}

	if s.power != nil {
		s.mcpServer.AddTool(
			mcp.NewTool("set_power_mode",
				mcp.WithDescription("Switch the observatory power mode"),
				mcp.WithString("mode",
					mcp.Required(),
					mcp.Description("Target power mode"),
					mcp.Enum("on", "standby", "soft_off", "hard_off"),
				),
			),
			s.handleSetPowerMode,
		)
	}
}
