package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/app"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/config"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <knowledge-base> <file>",
	Short: "Ingest a document into a knowledge base",
	Long: `Ingest a text or markdown file into a knowledge base.

The knowledge base may be given as a UUID or a title substring.
The file is chunked, embedded, and stored; progress is printed as
the pipeline advances.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, kbRef, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path is the point of the command
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default(), Version)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	kb, err := resolveKnowledgeBase(ctx, a.Store, kbRef)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	doc := ingest.Document{Name: filepath.Base(path), Data: data}
	result, err := a.Pipeline.Ingest(ctx, kb.ID, doc, func(stage string, percent int) {
		fmt.Fprintf(out, "  %3d%%  %s\n", percent, stage)
	})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", doc.Name, err)
	}

	fmt.Fprintf(out, "Ingested %s into %q: %d chunks, %d stored", doc.Name, kb.Title, result.Chunks, result.Inserted)
	if result.Dropped > 0 {
		fmt.Fprintf(out, " (%d dropped)", result.Dropped)
	}
	fmt.Fprintln(out)
	return nil
}

// resolveKnowledgeBase accepts either a UUID or a title substring.
func resolveKnowledgeBase(ctx context.Context, store *knowledge.Store, ref string) (knowledge.KnowledgeBase, error) {
	if id, err := uuid.Parse(ref); err == nil {
		kb, err := store.GetKnowledgeBase(ctx, id)
		if err != nil {
			return knowledge.KnowledgeBase{}, fmt.Errorf("looking up knowledge base %s: %w", id, err)
		}
		return kb, nil
	}

	kb, err := store.FindKnowledgeBaseByTitle(ctx, ref)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return knowledge.KnowledgeBase{}, fmt.Errorf("no knowledge base matching %q", ref)
		}
		return knowledge.KnowledgeBase{}, fmt.Errorf("looking up knowledge base %q: %w", ref, err)
	}
	return kb, nil
}
