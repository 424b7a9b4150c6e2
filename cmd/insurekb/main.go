// Package main implements the insurekb CLI - the composition root for
// the insurance document knowledge pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/insurekb/internal/config"
	"github.com/c360studio/insurekb/internal/graphrag"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "insurekb",
		Short:   "Insurance document knowledge pipeline",
		Version: Version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (defaults applied if omitted)")

	root.AddCommand(runCmd(&configPath), queryCmd(&configPath), migrateCmd())
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid default config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Advance a workflow's documents through every pipeline stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowID := args[0]

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
			app := NewApp(cfg, logger)

			ctx, cancel := signalContext()
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(30 * time.Second)

			return app.RunWorkflow(ctx, workflowID)
		},
	}
	return cmd
}

func queryCmd(configPath *string) *cobra.Command {
	var workflowID string
	var maxContextTokens int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a GraphRAG question over an ingested workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := args[0]

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			app := NewApp(cfg, logger)

			ctx, cancel := signalContext()
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(10 * time.Second)

			if maxContextTokens == 0 {
				maxContextTokens = cfg.GraphRAG.MaxContextTokens
			}

			result, err := app.Query(ctx, graphrag.Request{
				Query:            question,
				WorkflowID:       workflowID,
				MaxContextTokens: maxContextTokens,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			fmt.Println(result.Answer)
			if len(result.Citations) > 0 {
				fmt.Println("\nCitations:")
				for _, c := range result.Citations {
					fmt.Printf("  [%s] page %d (%s)\n", c.ID, c.PrimaryPage, c.ExtractionMethod)
				}
			}
			if result.FallbackMode {
				fmt.Fprintln(os.Stderr, "warning: graph store unavailable, answered from vector recall only")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "Scope the query to a single workflow's knowledge base")
	cmd.Flags().IntVar(&maxContextTokens, "max-context-tokens", 0, "Override the assembled context token budget (0 uses config default)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Print schema bootstrap instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(`Schema migrations are managed by external tooling, not this binary.

Postgres: apply the SQL in internal/store/migrations/ with your preferred migration
runner (golang-migrate, goose, flyway).

Neo4j: "insurekb run" calls EnsureConstraints on startup, which creates
the required uniqueness constraints idempotently. No separate step is
needed for the graph store.`)
			return nil
		},
	}
}
