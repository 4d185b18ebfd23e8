package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/app"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/config"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge bases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			kbs, err := a.Store.ListKnowledgeBases(ctx)
			if err != nil {
				return fmt.Errorf("listing knowledge bases: %w", err)
			}
			if len(kbs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No knowledge bases. Create one with: khub kb create <title>")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tDOCUMENTS\tCREATED")
			for _, kb := range kbs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					kb.ID, kb.Title, kb.DocumentCount, kb.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var (
	kbCreateDescription string
	kbCreateIcon        string
)

var kbCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			kb, err := a.Store.CreateKnowledgeBase(ctx, args[0], kbCreateDescription, kbCreateIcon)
			if err != nil {
				return fmt.Errorf("creating knowledge base: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s)\n", kb.Title, kb.ID)
			return nil
		})
	},
}

var kbDeleteCmd = &cobra.Command{
	Use:   "delete <knowledge-base>",
	Short: "Delete a knowledge base and all its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			kb, err := resolveKnowledgeBase(ctx, a.Store, args[0])
			if err != nil {
				return err
			}
			if err := a.Store.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
				return fmt.Errorf("deleting knowledge base: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q (%s)\n", kb.Title, kb.ID)
			return nil
		})
	},
}

var kbSourcesCmd = &cobra.Command{
	Use:   "sources <knowledge-base>",
	Short: "List a knowledge base's source documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			kb, err := resolveKnowledgeBase(ctx, a.Store, args[0])
			if err != nil {
				return err
			}
			sources, err := a.Store.ListSources(ctx, kb.ID)
			if err != nil {
				return fmt.Errorf("listing sources: %w", err)
			}
			if len(sources) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No documents in %q.\n", kb.Title)
				return nil
			}
			return printSources(cmd.OutOrStdout(), sources)
		})
	},
}

func init() {
	kbCreateCmd.Flags().StringVarP(&kbCreateDescription, "description", "d", "", "knowledge base description")
	kbCreateCmd.Flags().StringVarP(&kbCreateIcon, "icon", "i", "", "icon name (default: book)")

	kbCmd.AddCommand(kbListCmd, kbCreateCmd, kbDeleteCmd, kbSourcesCmd)
	rootCmd.AddCommand(kbCmd)
}

func printSources(out io.Writer, sources []knowledge.SourceFile) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHUNKS\tSIZE\tUPLOADED")
	for _, src := range sources {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			src.Name, src.ChunkCount, src.SizeBytes, src.UploadedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// withApp loads config, builds the application, runs fn, and tears
// everything down. Shared by the one-shot admin commands.
func withApp(fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
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

	return fn(ctx, a)
}
