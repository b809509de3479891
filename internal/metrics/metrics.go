// Package metrics registers the pipeline's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingsPublished counts raw listings published by the scout, by site.
	ListingsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comps_listings_published_total",
		Help: "Raw listings published to the pipeline by seed site.",
	}, []string{"site"})

	// LLMFallbacks counts generative-text failures that fell back to the
	// deterministic path, by stage.
	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comps_llm_fallbacks_total",
		Help: "Generative-text calls replaced by the deterministic fallback.",
	}, []string{"stage"})

	// Upserts counts competitions written to the store.
	Upserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comps_upserts_total",
		Help: "Competition rows upserted by the sink.",
	})

	// PermanentDrops counts messages acked away as unrecoverable, by stage.
	PermanentDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comps_permanent_drops_total",
		Help: "Messages dropped as permanently unprocessable by stage.",
	}, []string{"stage"})
)
