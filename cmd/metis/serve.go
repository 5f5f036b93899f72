package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and WebSocket event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port > 0 {
				a.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.NewServer(rt.svc, rt.reqs, rt.hub,
		server.WithAPIPrefix(cfg.Server.APIPrefix),
		server.WithWebSocketPath(cfg.Server.WebSocketPath),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		server.WithPort(cfg.Server.Port),
		server.WithWriteTimeout(cfg.Events.DeliveryTimeout),
		server.WithLogger(logger),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// closing the hub drops WebSocket clients, which Shutdown does not track
	rt.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
