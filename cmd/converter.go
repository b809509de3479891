package main

import (
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/converter"
	"github.com/ukfreecomps/pipeline/internal/model"
)

var converterCmd = &cobra.Command{
	Use:   "converter",
	Short: "Turn raw listings into initial competition records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		publisher, err := bus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.ValidatedTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()

		conv := converter.New(publisher, newGemini(cfg.Gemini), cfg.Gemini.SummaryModel)

		consumer, err := bus.NewConsumer(bus.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.RawTopic,
			GroupID: cfg.Kafka.GroupID("converter"),
			Handler: conv,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return consumer.Run(ctx) })
		g.Go(func() error { return serveHTTP(ctx, cfg.Server.Port, converterRouter(conv, cfg)) })
		return g.Wait()
	},
}

func converterRouter(conv *converter.Converter, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":           "OK",
			"inputTopic":       cfg.Kafka.RawTopic,
			"outputTopic":      cfg.Kafka.ValidatedTopic,
			"geminiModel":      cfg.Gemini.SummaryModel,
			"geminiConfigured": cfg.Gemini.Enabled(),
		})
	})

	// Runs the transform synchronously on a posted raw listing, for manual QA.
	r.Post("/test", func(w http.ResponseWriter, req *http.Request) {
		var raw model.RawListing
		if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"error":"invalid raw listing payload"}`)
			return
		}
		raw.Normalize(time.Now())

		comp := conv.Convert(req.Context(), raw)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(comp)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func init() {
	rootCmd.AddCommand(converterCmd)
}
