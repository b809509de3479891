package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/robots"
	"github.com/ukfreecomps/pipeline/internal/scout"
)

var scoutCmd = &cobra.Command{
	Use:   "scout",
	Short: "Crawl seed sites and publish raw listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		publisher, err := bus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.RawTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()

		sites := config.LoadSeedSites(cfg.Scout.SeedsFile)

		robotsCache := robots.NewCache(&http.Client{
			Timeout: time.Duration(cfg.Scout.RobotsTimeoutSecs) * time.Second,
		}, cfg.Scout.UserAgent())

		s := scout.New(cfg.Scout, sites, robotsCache, publisher)

		g, ctx := errgroup.WithContext(ctx)

		// Scheduled crawls; the trigger endpoint starts extra ones on demand.
		if cfg.Scout.IntervalSecs > 0 {
			interval := time.Duration(cfg.Scout.IntervalSecs) * time.Second
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						s.Crawl(ctx)
					case <-ctx.Done():
						return nil
					}
				}
			})
		}

		g.Go(func() error { return serveHTTP(ctx, cfg.Server.Port, scoutRouter(ctx, s, cfg)) })
		return g.Wait()
	},
}

// scoutRouter exposes the crawl trigger and liveness endpoints.
func scoutRouter(ctx context.Context, s *scout.Scout, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Post("/trigger", func(w http.ResponseWriter, req *http.Request) {
		// Fire and forget: the caller never observes completion, outcomes go
		// to logs and counters only.
		go func() {
			published := s.Crawl(ctx)
			zap.L().Info("triggered crawl complete", zap.Int("published", published))
		}()
		writeJSON(w, http.StatusAccepted, `{"status":"accepted"}`)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "OK",
			"outputTopic":  cfg.Kafka.RawTopic,
			"siteCount":    s.SiteCount(),
			"intervalSecs": cfg.Scout.IntervalSecs,
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func init() {
	rootCmd.AddCommand(scoutCmd)
}
