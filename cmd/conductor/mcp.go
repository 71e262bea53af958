package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/conductor"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes workflows and tasks as MCP tools so agents can create tasks and send events.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// Stdout carries JSON-RPC in stdio mode.
		c, err := conductor.New(cmd.Context(), cfg, conductor.WithConsoleWriter(os.Stderr))
		if err != nil {
			return err
		}
		defer c.Close()

		srv := c.MCPServer()
		switch transport {
		case "stdio":
			c.Logger().Info("starting MCP server", "transport", transport)
			return srv.ServeStdio()
		case "sse":
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, addr, baseURL); err != nil {
				return err
			}
			c.Logger().Info("MCP server stopped")
			return nil
		default:
			return fmt.Errorf("unknown transport %q: supported are stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL announced to SSE clients")
}
