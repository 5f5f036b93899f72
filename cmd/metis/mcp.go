package main

import (
	"github.com/spf13/cobra"

	"github.com/ldi/metis/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP tool server on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			s := mcp.NewServer(rt.svc, rt.reqs)
			a.logger.Debug("mcp server ready", "name", mcp.ServerName, "version", mcp.ServerVersion)
			return mcp.ServeIO(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
		},
	}
}
