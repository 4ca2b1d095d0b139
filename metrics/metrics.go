// Package metrics holds the Prometheus collectors shared by the enrichment
// pipeline, the control plane and the model store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Enrichment results.
const (
	ResultApplied       = "applied"
	ResultNotApplicable = "not_applicable"
	ResultMissing       = "missing"
	ResultFatal         = "fatal"
)

// Control command results.
const (
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultUnrouted = "unrouted"
)

// Record results.
const (
	ResultEnriched     = "enriched"
	ResultPoison       = "poison"
	ResultPublishError = "publish_error"
)

// Model load results.
const (
	ResultLoaded = "loaded"
	ResultError  = "error"
)

var (
	// EnrichCalls counts enricher invocations by capability key and outcome.
	EnrichCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semenrich_enrich_calls_total",
		Help: "Enricher invocations by capability and result",
	}, []string{"capability", "result"})

	// EnrichDuration tracks enricher latency.
	EnrichDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "semenrich_enrich_duration_seconds",
		Help:    "Enricher invocation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	}, []string{"capability"})

	// ControlCommands counts control-plane commands by type and outcome.
	ControlCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semenrich_control_commands_total",
		Help: "Control commands received by type and result",
	}, []string{"type", "result"})

	// Records counts records handled by the record enricher.
	Records = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semenrich_records_total",
		Help: "Records handled by result",
	}, []string{"result"})

	// ModelLoads counts model artifact loads.
	ModelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semenrich_model_loads_total",
		Help: "Model artifact loads by model and result",
	}, []string{"model", "result"})

	// ModelGeneration is the generation of the artifact currently installed per model.
	ModelGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "semenrich_model_generation",
		Help: "Generation number of the installed model artifact",
	}, []string{"model"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
