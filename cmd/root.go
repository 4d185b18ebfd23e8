// Package cmd implements the khub command line interface.
//
// Subcommands cover the two server modes (serve, mcp) and local
// administration (kb, ingest, version). All commands load configuration
// the same way and build the application through app.Setup.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "khub",
	Short: "Knowledge Hub - document knowledge bases with RAG chat",
	Long: `Knowledge Hub manages document knowledge bases backed by PostgreSQL
and pgvector. Documents are chunked, embedded, and stored for semantic
search; answers are generated from retrieved passages with citations.

Run "khub serve" for the HTTP API or "khub mcp" to expose the
query_knowledge tool to MCP clients over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.
func Execute() error {
	initLogger()
	return rootCmd.Execute()
}

// initLogger installs the default structured logger.
//
// Logs always go to stderr: in MCP stdio mode stdout is reserved for
// JSON-RPC frames. DEBUG in the environment raises the level.
func initLogger() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))
}
