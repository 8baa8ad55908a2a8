// Package mcpserver exposes the escrow API as MCP tools so assistants can
// inspect and move transactions on a user's behalf.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all escrow tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("homeescrow", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolListTransactions, h.HandleListTransactions)
	s.AddTool(ToolUpdateStatus, h.HandleUpdateStatus)
	s.AddTool(ToolFileDispute, h.HandleFileDispute)
	s.AddTool(ToolGetTimeline, h.HandleGetTimeline)
	s.AddTool(ToolGetStatistics, h.HandleGetStatistics)

	return s
}
