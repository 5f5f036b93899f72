package main

import (
	"context"
	"log/slog"

	"github.com/ldi/metis/internal/config"
	"github.com/ldi/metis/internal/db"
	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/internal/requirements"
	"github.com/ldi/metis/internal/service"
)

// runtime is the fully wired task graph behind serve, mcp and status.
type runtime struct {
	db    *db.DB
	store *graph.Store
	hub   *events.Hub
	svc   *service.Service
	reqs  *requirements.Gateway
}

func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	storeOpts := []graph.Option{graph.WithLogger(logger)}

	if !cfg.Database.InMemory() {
		database, err := db.OpenAndInit(ctx, cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		rt.db = database
		if cfg.Snapshot.Auto {
			database.EnableAutoSnapshot(cfg.Snapshot.Path, logger)
		}
		storeOpts = append(storeOpts, graph.WithPersister(database))
	}

	rt.store = graph.New(storeOpts...)
	if err := rt.store.Load(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	logger.Debug("task graph loaded", "tasks", rt.store.Len(), "database", cfg.Database.Path)

	rt.hub = events.NewHub(
		events.WithQueueSize(cfg.Events.QueueSize),
		events.WithDeliveryTimeout(cfg.Events.DeliveryTimeout),
		events.WithLogger(logger),
	)
	rt.svc = service.New(rt.store, rt.hub, service.WithLogger(logger))

	telos, err := requirements.NewTelosClient(cfg.Telos.URL, cfg.Telos.Timeout)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.reqs = requirements.NewGateway(telos, rt.svc, logger)
	return rt, nil
}

func (rt *runtime) Close() error {
	if rt.hub != nil {
		rt.hub.Close()
	}
	if rt.db != nil {
		return rt.db.Close()
	}
	return nil
}

// openDatabase is for the snapshot commands, which work on the file
// directly.
func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Database.InMemory() {
		return nil, errors.InvalidArgumentf("snapshots need a database file, not %s", db.MemoryPath)
	}
	return db.OpenAndInit(ctx, cfg.Database.Path)
}
