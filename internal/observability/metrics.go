package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// analytics pipeline.
type Metrics struct {
	ObservationsProcessed prometheus.Counter
	EventsEmitted         prometheus.Counter
	TransformErrors       prometheus.Counter
	PipelineRunning       prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
	EvaluationDuration      prometheus.Histogram

	// Analytics outcome metrics.
	IndexSetsEmitted       prometheus.Counter
	AnomaliesDetected      *prometheus.CounterVec // labels: index, type={sudden_drop,decline,unexpected_growth}
	ChangeEventsDetected   *prometheus.CounterVec // labels: type
	InsufficientHistory    prometheus.Counter
	PrescriptionsGenerated *prometheus.CounterVec // labels: input

	// Soil enrichment metrics.
	SoilLookups *prometheus.CounterVec // labels: outcome={success,error}
	SoilCache   *prometheus.CounterVec // labels: result={hit,miss}
	SoilEnabled prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ObservationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "observations_processed_total",
			Help:      "Total field messages read from the source topic.",
		}),
		EventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "events_emitted_total",
			Help:      "Total signal events written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "transform_errors_total",
			Help:      "Total evaluation failures.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "veg_analytics",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veg_analytics",
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 50, 75, 100, 150, 250},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veg_analytics",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-evaluate-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veg_analytics",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of the analytics evaluation for one field message.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		IndexSetsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "index_sets_emitted_total",
			Help:      "Total per-observation vegetation index sets computed.",
		}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "anomalies_detected_total",
			Help:      "Anomalies raised by index and anomaly type.",
		}, []string{"index", "type"}),
		ChangeEventsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "change_events_detected_total",
			Help:      "Field change events classified by change type.",
		}, []string{"type"}),
		InsufficientHistory: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "insufficient_history_total",
			Help:      "Observations skipped for detection because history was too short.",
		}),
		PrescriptionsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "prescriptions_generated_total",
			Help:      "Variable-rate prescription maps generated by input type.",
		}, []string{"input"}),
		SoilLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "soil_lookups_total",
			Help:      "Soil-grid API lookups by outcome.",
		}, []string{"outcome"}),
		SoilCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veg_analytics",
			Name:      "soil_cache_total",
			Help:      "Soil lookup cache results.",
		}, []string{"result"}),
		SoilEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "veg_analytics",
			Name:      "soil_enabled",
			Help:      "1 when soil enrichment is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.ObservationsProcessed,
		m.EventsEmitted,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.EvaluationDuration,
		m.IndexSetsEmitted,
		m.AnomaliesDetected,
		m.ChangeEventsDetected,
		m.InsufficientHistory,
		m.PrescriptionsGenerated,
		m.SoilLookups,
		m.SoilCache,
		m.SoilEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ObservationsProcessed:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "observations_processed_total"}),
		EventsEmitted:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "events_emitted_total"}),
		TransformErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "transform_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "veg_analytics", Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "veg_analytics", Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "veg_analytics", Name: "batch_processing_duration_seconds"}),
		EvaluationDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "veg_analytics", Name: "evaluation_duration_seconds"}),
		IndexSetsEmitted:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "index_sets_emitted_total"}),
		AnomaliesDetected:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "anomalies_detected_total"}, []string{"index", "type"}),
		ChangeEventsDetected:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "change_events_detected_total"}, []string{"type"}),
		InsufficientHistory:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "insufficient_history_total"}),
		PrescriptionsGenerated:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "prescriptions_generated_total"}, []string{"input"}),
		SoilLookups:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "soil_lookups_total"}, []string{"outcome"}),
		SoilCache:               prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "veg_analytics", Name: "soil_cache_total"}, []string{"result"}),
		SoilEnabled:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "veg_analytics", Name: "soil_enabled"}),
	}
}
