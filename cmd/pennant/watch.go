package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	pennant "github.com/pennant-io/pennant-go"
	"github.com/pennant-io/pennant-go/internal/tracing"
)

const watchShutdownTimeout = 5 * time.Second

func newWatchCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a remote datafile and log lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.datafileURL == "" {
				return fmt.Errorf("--url is required")
			}

			shutdownTracer, err := tracing.Init(cmd.Context(), "pennant-watch")
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), watchShutdownTimeout)
				defer cancel()
				if err := shutdownTracer(ctx); err != nil {
					opts.log.Error("tracer shutdown failed", slog.String("error", err.Error()))
				}
			}()

			registry := prometheus.NewRegistry()
			if opts.cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				go func() {
					if err := http.ListenAndServe(opts.cfg.MetricsAddr, mux); err != nil {
						opts.log.Error("metrics server failed", slog.String("error", err.Error()))
					}
				}()
			}

			instance, err := pennant.CreateInstance(pennant.Options{
				DatafileURL:       opts.datafileURL,
				RefreshInterval:   opts.cfg.RefreshInterval,
				Logger:            opts.log,
				MetricsRegisterer: registry,
				OnReady: func() {
					opts.log.Info("datafile ready")
				},
				OnRefresh: func() {
					opts.log.Info("datafile refreshed")
				},
				OnUpdate: func() {
					opts.log.Info("datafile revision changed")
				},
			})
			if err != nil {
				return err
			}
			instance.On(pennant.EventUpdate, func(...any) {
				opts.log.Info("revision", slog.String("revision", instance.GetRevision()))
			})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			instance.StopRefreshing()
			return nil
		},
	}
	return cmd
}
