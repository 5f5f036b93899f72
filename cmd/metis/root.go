package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ldi/metis/internal/config"
	"github.com/ldi/metis/internal/logging"
)

const version = "0.1.0"

// app carries the persistent flags and what PersistentPreRunE builds from
// them.
type app struct {
	cfgFile string
	dbPath  string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "metis",
		Short:         "Metis tracks tasks and the dependencies between them.",
		Long:          "Metis keeps a graph of tasks, subtasks, requirement links and typed dependencies,\nserves it over HTTP, WebSocket and MCP, and persists it to SQLite.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./metis.yaml or ./.metis/metis.yaml)")
	flags.StringVar(&a.dbPath, "db-path", "", "database file, :memory: to keep nothing on disk (overrides database.path)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newStatusCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if cfg.File != "" {
		a.logger.Debug("using config file", "path", cfg.File)
	}
	return nil
}
