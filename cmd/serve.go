package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/resilience"
	"github.com/ukfreecomps/pipeline/pkg/gemini"
)

// serveHTTP runs an HTTP server until ctx is canceled, then shuts it down
// gracefully.
func serveHTTP(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// newGemini builds the generative-text client shared by the converter and
// validator stages. The breaker keeps a hard outage from paying the request
// timeout on every message.
func newGemini(gc config.GeminiConfig) gemini.Client {
	opts := []gemini.Option{
		gemini.WithHTTPClient(&http.Client{
			Timeout: time.Duration(gc.TimeoutSecs) * time.Second,
		}),
		gemini.WithBreaker(resilience.NewCircuitBreaker(
			gc.BreakerTrips,
			time.Duration(gc.BreakerHoldSec)*time.Second,
		)),
	}
	if gc.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(gc.BaseURL))
	}
	return gemini.NewClient(gc.Key, opts...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
