package main

import (
	iteratamcp "github.com/hyperengineering/iterata/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This lets coding agents log corrections and inspect patterns directly.

Configuration example:

  {
    "mcpServers": {
      "iterata": {
        "command": "iterata",
        "args": ["mcp"],
        "env": {
          "ITERATA_BASE_PATH": "/path/to/corrections"
        }
      }
    }
  }

Environment variables:
  ITERATA_BASE_PATH     Root directory of the correction store
  ITERATA_STORAGE       Storage backend: markdown or sqlite
  ITERATA_BACKEND       Explainer backend: mock or anthropic
  ANTHROPIC_API_KEY     API key for the anthropic backend`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	server := iteratamcp.NewServer(loop)
	return server.Run()
}
