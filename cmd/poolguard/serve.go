package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolGuard/internal/events"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose pool metrics and refresh them periodically",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().String("listen", ":9100", "metrics listen address")
	cmd.Flags().Duration("publish-interval", 15*time.Second, "gauge refresh interval")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.PublishInterval <= 0 {
		return fmt.Errorf("publish-interval must be positive")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	a.logger.Info("serve start",
		zap.String("listen", a.cfg.Listen),
		zap.Duration("publish_interval", a.cfg.PublishInterval),
	)

	publish := func() {
		if err := a.ctrl.PublishMetrics(ctx); err != nil {
			a.logger.Warn("publish metrics failed", zap.Error(err))
		}
	}
	publish()

	ticker := time.NewTicker(a.cfg.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutCtx); err != nil {
				return err
			}
			a.logger.Info("serve stopped")
			return nil
		case err, ok := <-errCh:
			if ok {
				return err
			}
			return nil
		case <-ticker.C:
			publish()
		}
	}
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print the event log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				if a.cfg.Events == "" {
					return fmt.Errorf("events path is not configured")
				}
				records, err := events.ReadJSONL(a.cfg.Events)
				if err != nil {
					return err
				}
				var filtered []interface{}
				for _, r := range records {
					if r.PoolID != a.cfg.PoolID {
						continue
					}
					filtered = append(filtered, r)
				}
				return printYAML(cmd, filtered)
			})
		},
	}
}
