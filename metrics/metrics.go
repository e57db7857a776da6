// Package metrics exposes the pipeline's Prometheus instrumentation: one
// registry-backed struct constructed once at process startup. The resolver
// binary constructs it and hands ResolverRequestsInFlight to its capacity
// limiter; the other collectors are registered and exported, but no
// component updates them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the pipeline registers.
type Metrics struct {
	JobsInFlight     prometheus.Gauge
	JobsProcessed    *prometheus.CounterVec
	JobsSkippedClaim prometheus.Counter

	ExtractionDurationSec *prometheus.HistogramVec
	ExtractionStageFailed *prometheus.CounterVec
	FramesExtracted       prometheus.Histogram

	InferenceDurationSec prometheus.Histogram
	InferenceRetries     prometheus.Counter
	InferenceFailures    *prometheus.CounterVec

	AggregateLabel *prometheus.CounterVec

	DiscoverySweepDurationSec prometheus.Histogram
	DiscoveryEnqueued         prometheus.Counter
	DiscoveryProviderFailures *prometheus.CounterVec

	SchedulerColdInference prometheus.Counter

	ResolverRequestsInFlight   prometheus.Gauge
	ResolverRequestDurationSec *prometheus.HistogramVec
}

// New registers and returns the pipeline's metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "doomscroller_jobs_in_flight",
			Help: "Number of analysis jobs currently being processed by this worker.",
		}),
		JobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomscroller_jobs_processed_total",
			Help: "Analysis jobs processed, broken down by outcome label.",
		}, []string{"label"}),
		JobsSkippedClaim: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doomscroller_jobs_skipped_claim_total",
			Help: "Jobs skipped because another worker already held or stamped the claim key.",
		}),

		ExtractionDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "doomscroller_extraction_duration_seconds",
			Help:    "Time taken to extract frames from a video, broken down by which fallback stage succeeded.",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"stage"}),
		ExtractionStageFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomscroller_extraction_stage_failed_total",
			Help: "Extraction stage attempts that failed, broken down by stage and classified error kind.",
		}, []string{"stage", "kind"}),
		FramesExtracted: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "doomscroller_frames_extracted",
			Help:    "Number of frames produced per successful extraction.",
			Buckets: []float64{1, 2, 4, 8, 12, 16, 24, 32},
		}),

		InferenceDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "doomscroller_inference_duration_seconds",
			Help:    "Time taken for the classifier to respond to a batch of frames.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20},
		}),
		InferenceRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doomscroller_inference_retries_total",
			Help: "Retry attempts made against the inference service.",
		}),
		InferenceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomscroller_inference_failures_total",
			Help: "Inference requests that ultimately failed, broken down by HTTP status class.",
		}, []string{"status_class"}),

		AggregateLabel: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomscroller_aggregate_label_total",
			Help: "Verdicts produced by the aggregator, broken down by label.",
		}, []string{"label"}),

		DiscoverySweepDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "doomscroller_discovery_sweep_duration_seconds",
			Help:    "Time taken for a full discovery sweep across all providers.",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 30, 60},
		}),
		DiscoveryEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doomscroller_discovery_enqueued_total",
			Help: "Candidates enqueued onto the broker by discovery sweeps.",
		}),
		DiscoveryProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomscroller_discovery_provider_failures_total",
			Help: "Discovery provider calls that returned an error, broken down by provider name.",
		}, []string{"provider"}),

		SchedulerColdInference: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doomscroller_scheduler_cold_inference_total",
			Help: "Times the scheduler observed the inference service as cold during a discovery tick.",
		}),

		ResolverRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "doomscroller_resolver_requests_in_flight",
			Help: "In-flight requests to the resolver's /analyze endpoint.",
		}),
		ResolverRequestDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "doomscroller_resolver_request_duration_seconds",
			Help:    "Latency of the resolver's /analyze endpoint, broken down by success.",
			Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"success"}),
	}
}
