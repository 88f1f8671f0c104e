package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/notiledger/internal/model"
)

func listenCmd() *cobra.Command {
	var noMetrics bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Process notifications streamed on stdin",
		Long: `Read one JSON notification per line from stdin and process each as it
arrives. This is the bridge for a device-side notification listener.

While listening, the catalog overrides file is watched and reloaded on
change, and Prometheus metrics are served on metrics.addr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			g, ctx := errgroup.WithContext(ctx)
			// Stop the watcher and the metrics server once input ends.
			ctx, stop := context.WithCancel(ctx)
			defer stop()

			g.Go(func() error { return a.provider.Watch(ctx) })

			if !noMetrics && a.cfg.MetricsAddr != "" {
				srv := &http.Server{
					Addr:              a.cfg.MetricsAddr,
					Handler:           metricsMux(a),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					slog.Info("Serving metrics", "addr", a.cfg.MetricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server failed: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				defer stop()
				return listen(ctx, a, bufio.NewScanner(cmd.InOrStdin()))
			})

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "do not serve Prometheus metrics")
	return cmd
}

func metricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// listen processes lines until input ends or ctx is canceled. Malformed
// lines and failed notifications are logged and skipped.
func listen(ctx context.Context, a *app, scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
				default:
				}
				slog.Info("Input closed, stopping listener")
				return nil
			}
			if len(line) == 0 {
				continue
			}

			var n model.Notification
			if err := json.Unmarshal(line, &n); err != nil {
				slog.Warn("Skipping malformed notification", "error", err)
				continue
			}
			withDefaults(&n, a.cfg)

			res, err := a.engine.Process(ctx, n)
			if err != nil {
				slog.Error("Failed to process notification",
					"group_id", n.GroupID,
					"source_package", n.SourcePackage,
					"error", err)
				continue
			}
			attrs := []any{"group_id", n.GroupID, "status", res.Status}
			if res.Transaction != nil {
				attrs = append(attrs, "transaction_id", res.Transaction.ID, "amount", res.Transaction.Amount)
			}
			slog.Info("Notification processed", attrs...)
		}
	}
}
