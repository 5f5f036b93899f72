package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ldi/metis/internal/service"
	"github.com/ldi/metis/pkg/models"
)

func newStatusCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task statistics and the order tasks can be worked in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.svc.Statistics(ctx)
			if err != nil {
				return err
			}
			order, err := rt.svc.TopologicalOrder(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), stats, order, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "how many tasks of the work order to list (0 for all)")
	return cmd
}

func printStatus(w io.Writer, stats service.Statistics, order []*models.Task, limit int) {
	fmt.Fprintln(w, "Metis Project Status")
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "Total Tasks:     %d\n", stats.Total)
	fmt.Fprintf(w, "Completion Rate: %.1f%%\n", stats.CompletionRate)

	fmt.Fprintln(w, "\nBy Status:")
	for _, s := range models.TaskStatuses {
		fmt.Fprintf(w, "  %-12s %d\n", s+":", stats.ByStatus[s])
	}

	fmt.Fprintln(w, "\nBy Priority:")
	for _, p := range models.TaskPriorities {
		fmt.Fprintf(w, "  %-12s %d\n", p+":", stats.ByPriority[p])
	}

	if len(stats.ByAssignee) > 0 {
		fmt.Fprintln(w, "\nBy Assignee:")
		names := make([]string, 0, len(stats.ByAssignee))
		for name := range stats.ByAssignee {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-12s %d\n", name+":", stats.ByAssignee[name])
		}
	}

	if len(order) == 0 {
		return
	}
	fmt.Fprintln(w, "\nWork Order:")
	for i, t := range order {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "  ... %d more\n", len(order)-limit)
			break
		}
		fmt.Fprintf(w, "  %2d. %-40s %-12s %s\n", i+1, t.Title, t.Status, t.Priority)
	}
}
