package main

import (
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/sink"
	"github.com/ukfreecomps/pipeline/internal/store"
)

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Persist final competitions into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		consumer, err := bus.NewConsumer(bus.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.FinalTopic,
			GroupID: cfg.Kafka.GroupID("sink"),
			Handler: sink.New(st),
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return consumer.Run(ctx) })
		g.Go(func() error { return serveHTTP(ctx, cfg.Server.Port, sinkRouter(st, cfg)) })
		return g.Wait()
	},
}

func sinkRouter(st store.Store, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Readiness reflects store connectivity with a trivial round trip.
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "OK"
		code := http.StatusOK
		if err := st.Ping(req.Context()); err != nil {
			status = "DEGRADED"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"inputTopic": cfg.Kafka.FinalTopic,
			"driver":     cfg.Store.Driver,
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func init() {
	rootCmd.AddCommand(sinkCmd)
}
