package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aretw0/troupe/internal/adapters/file"
	"github.com/aretw0/troupe/internal/cli"
	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/pkg/adapters/mcp"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/registry"
	"github.com/aretw0/troupe/pkg/session"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [dir]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the machines of a directory to AI agents as MCP tools: list and
describe machines, send events to sessions and read them back.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("log-level")
		level, err := logging.ParseLevel(raw)
		if err != nil {
			return err
		}
		// Stdout carries JSON-RPC on stdio, so logs are JSON lines on stderr.
		logger := logging.NewJSON(os.Stderr, level)
		log.SetOutput(os.Stderr)

		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		reg := registry.New()
		if _, err := reg.Load(file.NewLoader(projectDir(cmd, args)), machine.Implementations{}); err != nil {
			return err
		}
		p, err := cli.OpenStore(storeConfig(cmd), logger)
		if err != nil {
			return err
		}
		defer p.Close()

		srv := mcp.NewServer(reg, p.Manager(session.WithLogger(logger)), mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("Starting troupe MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			ctx := cli.NewSignalContext(cmd.Context())
			defer ctx.Cancel()
			if err := srv.ServeSSE(ctx, port); err != nil {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		}
		return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	addStoreFlags(mcpCmd.Flags())
}
