package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldi/metis/internal/graph"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the database to a JSONL snapshot (default snapshot.path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Snapshot.Path
			if len(args) > 0 {
				path = args[0]
			}

			ctx := cmd.Context()
			database, err := openDatabase(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.ExportSnapshot(ctx, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported snapshot to %s\n", path)
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Load a JSONL snapshot into the database (default snapshot.path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Snapshot.Path
			if len(args) > 0 {
				path = args[0]
			}

			ctx := cmd.Context()
			database, err := openDatabase(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			stats, err := database.ImportSnapshot(ctx, path)
			if err != nil {
				return err
			}
			// loading re-checks references and acyclicity of what was imported
			store := graph.New(graph.WithPersister(database), graph.WithLogger(a.logger))
			if err := store.Load(ctx); err != nil {
				return fmt.Errorf("imported snapshot is not a valid graph: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Imported %d tasks and %d dependencies from %s\n", stats.Tasks, stats.Dependencies, path)
			fmt.Fprintf(out, "✓ Graph holds %d tasks\n", store.Len())
			return nil
		},
	}
}
