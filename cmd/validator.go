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
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
	"github.com/ukfreecomps/pipeline/internal/validator"
)

var validatorCmd = &cobra.Command{
	Use:   "validator",
	Short: "Gate and enrich competition records before persistence",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		publisher, err := bus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.FinalTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()

		val := validator.New(publisher, newGemini(cfg.Gemini), cfg.Gemini.EnrichModel)

		consumer, err := bus.NewConsumer(bus.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.ValidatedTopic,
			GroupID: cfg.Kafka.GroupID("validator"),
			Handler: val,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return consumer.Run(ctx) })
		g.Go(func() error { return serveHTTP(ctx, cfg.Server.Port, validatorRouter(val, cfg)) })
		return g.Wait()
	},
}

func validatorRouter(val *validator.Validator, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":           "OK",
			"inputTopic":       cfg.Kafka.ValidatedTopic,
			"outputTopic":      cfg.Kafka.FinalTopic,
			"geminiModel":      cfg.Gemini.EnrichModel,
			"geminiConfigured": cfg.Gemini.Enabled(),
		})
	})

	// Runs the gate and enrichment synchronously on a posted competition,
	// for manual QA. An html_excerpt field may ride along.
	r.Post("/test", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			model.Competition
			HTMLExcerpt string `json:"html_excerpt"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"error":"invalid competition payload"}`)
			return
		}

		approved, err := val.Process(req.Context(), body.Competition, body.HTMLExcerpt)
		if err != nil {
			status := http.StatusInternalServerError
			if resilience.IsPermanent(err) {
				status = http.StatusUnprocessableEntity
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(approved)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func init() {
	rootCmd.AddCommand(validatorCmd)
}
