package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	vmcp "github.com/vitrinehq/vitrine/internal/mcp"
	"github.com/vitrinehq/vitrine/internal/service"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the read-only operator MCP server",
		Long: `Start a Model Context Protocol (MCP) server that exposes read-only operator
tools: listing back office accounts, inspecting login lockouts and reading the
audit trail. Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC.
In HTTP mode, the server listens on the specified port (Streamable HTTP).`,
		Example: `  vitrine mcp                              # stdio mode
  vitrine mcp --transport http --port 3001  # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}

	cmd.Flags().String("transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().Int("port", 3001, "HTTP port (only used with --transport http)")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.port", cmd.Flags().Lookup("port"))

	return cmd
}

func runMCP() error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	// stdout belongs to the protocol in stdio mode.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger := service.NewLedger(store, settings.Lockout, time.Now)
	mcpSrv := vmcp.NewMCPServer(store, ledger, versionString(), logger)

	switch settings.MCP.Transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", settings.MCP.Port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", settings.MCP.Transport)
	}
}
