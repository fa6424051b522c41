package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/consumer-puls/insights-scraper/internal/kv"
	"github.com/consumer-puls/insights-scraper/internal/monitor"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run progress over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := initKV(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		// Counters are read fresh from the store on every request, so the
		// endpoint tracks a run happening in another process.
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			stats, found, err := loadStats(req.Context(), store)
			if err != nil {
				http.Error(w, `{"error":"stats unavailable"}`, http.StatusInternalServerError)
				return
			}
			if !found {
				http.Error(w, `{"error":"no stats recorded yet"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"stats":      stats,
				"blockRatio": stats.Summarize().BlockRatio,
			})
		})

		r.Get("/report", func(w http.ResponseWriter, req *http.Request) {
			stats, found, err := loadStats(req.Context(), store)
			if err != nil {
				http.Error(w, "stats unavailable", http.StatusInternalServerError)
				return
			}
			if !found {
				http.Error(w, "no stats recorded yet", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprintln(w, stats.Summarize().Render())
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("status server listening",
				zap.String("component", "serve"),
				zap.Int("port", port),
			)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
		}
		return nil
	},
}

func loadStats(ctx context.Context, store kv.Store) (*monitor.Stats, bool, error) {
	var stats monitor.Stats
	found, err := kv.GetJSON(ctx, store, kv.KeyStats, &stats)
	if err != nil {
		return nil, false, err
	}
	return &stats, found, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
