package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	wireflow "github.com/wireflow/wireflow-go"
	"github.com/wireflow/wireflow-go/bridge"
	"github.com/wireflow/wireflow-go/config"
	"github.com/wireflow/wireflow-go/contracts"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the adapter and the HTTP trigger bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}
}

func serve(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	registry := prometheus.NewRegistry()

	client, err := wireflow.NewClient(cfg.BrokerURL,
		wireflow.WithClientLogger(logger),
		wireflow.WithReconnectBackoff(cfg.ReconnectBackoff),
		wireflow.WithConnectTimeout(cfg.ConnectTimeout),
		wireflow.WithBrokerAddressing(cfg.Exchange, cfg.RoutingKey, cfg.Queue),
		wireflow.WithMetrics(registry),
	)
	if err != nil {
		return err
	}

	br, err := bridge.New(client.Dispatcher(), forwardingTrigger(logger),
		bridge.WithHealth(client.Health()),
		bridge.WithLogger(logger),
		bridge.WithMetricsRegistry(registry),
	)
	if err != nil {
		return err
	}

	if err := client.Connect(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: br.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("trigger bridge listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		_ = client.Close()
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	return client.Close()
}

// forwardingTrigger relays the HTTP request body as the trigger output and
// writes the correlated workflow response back to the HTTP caller.
func forwardingTrigger(logger *slog.Logger) bridge.TriggerHandler {
	return func(w http.ResponseWriter, r *http.Request, meta json.RawMessage, route bridge.RouteInfo, complete bridge.CompleteFunc) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			complete(nil, nil)
			return
		}

		complete(body, func(reply *contracts.Envelope) {
			if reply.Header.Error {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write(reply.Body)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(reply.Body)
		})
	}
}
