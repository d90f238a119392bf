// Command seed loads workflow graphs and TTables from YAML or JSON files
// into the configured store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"workflow-engine/backend/internal/config"
	"workflow-engine/backend/internal/logging"
	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/internal/services"
)

type rootOptions struct {
	EnvFile string
	DryRun  bool
}

// opener connects to the store the seeds are written to.
type opener func(ctx context.Context, opts *rootOptions) (repository.Repository, services.Logger, error)

func main() {
	if err := newRootCommand(openConfigured).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openConfigured(ctx context.Context, opts *rootOptions) (repository.Repository, services.Logger, error) {
	cfg, err := config.LoadConfig(opts.EnvFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Store connected", "driver", cfg.Store.Driver)
	return store, logger, nil
}

func newRootCommand(open opener) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load workflow definitions and TTables into the store",
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", "", "path to .env file")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "parse files without writing")

	cmd.AddCommand(newWorkflowCommand(opts, open))
	cmd.AddCommand(newTTableCommand(opts, open))
	return cmd
}

func newWorkflowCommand(opts *rootOptions, open opener) *cobra.Command {
	return &cobra.Command{
		Use:          "workflow <file>...",
		Short:        "Upsert workflow graphs keyed by flows_code",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var total int
			return withStore(cmd, opts, open, func(ctx context.Context, store repository.Repository, logger services.Logger) error {
				definitions := services.NewDefinitionService(store, nil, logger)
				for _, path := range args {
					graphs, err := loadWorkflows(path)
					if err != nil {
						return err
					}
					for _, graph := range graphs {
						total++
						if store == nil {
							continue
						}
						stored, err := definitions.Upsert(ctx, graph)
						if err != nil {
							return fmt.Errorf("failed to seed workflow %s: %w", graph.FlowsCode, err)
						}
						logger.Info("Seeded workflow", "flows_code", stored.FlowsCode, "edges", len(stored.Edges))
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d workflow(s) loaded\n", total)
				return nil
			})
		},
	}
}

func newTTableCommand(opts *rootOptions, open opener) *cobra.Command {
	return &cobra.Command{
		Use:          "ttable <file>...",
		Short:        "Upsert TTables keyed by app_id",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var total int
			return withStore(cmd, opts, open, func(ctx context.Context, store repository.Repository, logger services.Logger) error {
				ttables := services.NewTTableService(store, nil, nil, logger)
				for _, path := range args {
					docs, err := loadTTables(path)
					if err != nil {
						return err
					}
					for _, ttable := range docs {
						total++
						if store == nil {
							continue
						}
						if _, err := ttables.Upsert(ctx, ttable); err != nil {
							return fmt.Errorf("failed to seed ttable %s: %w", ttable.AppID, err)
						}
						logger.Info("Seeded ttable", "app_id", ttable.AppID, "fields", len(ttable.Fields))
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d ttable(s) loaded\n", total)
				return nil
			})
		},
	}
}

// withStore runs fn against an open store, or against a nil store in dry-run mode.
func withStore(cmd *cobra.Command, opts *rootOptions, open opener,
	fn func(ctx context.Context, store repository.Repository, logger services.Logger) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.DryRun {
		return fn(ctx, nil, services.NopLogger())
	}

	store, logger, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()
	return fn(ctx, store, logger)
}
