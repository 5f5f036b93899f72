package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/server"
	"github.com/ldi/metis/internal/ui"
)

// runFeed is swapped out in tests.
var runFeed = ui.RunFeed

func newWatchCmd(a *app) *cobra.Command {
	var (
		url      string
		clientID string
		types    []string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live event stream of a running metis server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				url = fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)
			}
			subscribe := make([]events.Type, 0, len(types))
			for _, t := range types {
				subscribe = append(subscribe, events.Type(t))
			}

			w, err := server.Watch(cmd.Context(), server.WebSocketURL(url, a.cfg.Server.WebSocketPath), clientID, subscribe...)
			if err != nil {
				return err
			}
			defer w.Close()
			a.logger.Debug("watching events", "client_id", w.ClientID(), "subscriptions", w.Subscriptions())

			return runFeed(w.Events(), limit, w.Err)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "server address (default http://localhost:<server.port>)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "client id to register (server assigns one when empty)")
	cmd.Flags().StringSliceVarP(&types, "events", "e", []string{string(events.All)}, "event types to subscribe to")
	cmd.Flags().IntVarP(&limit, "limit", "n", ui.DefaultLimit, "feed lines to keep")
	return cmd
}
