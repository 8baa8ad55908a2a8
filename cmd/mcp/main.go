// HomeEscrow MCP server - exposes escrow operations as MCP tools over stdio
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/homeescrow/internal/mcpserver"
)

var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("HOMEESCROW_API_URL", "http://localhost:8080"),
		Token:  os.Getenv("HOMEESCROW_TOKEN"),
	}
	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "HOMEESCROW_TOKEN is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
