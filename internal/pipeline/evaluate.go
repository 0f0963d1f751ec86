package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/observability"
	"github.com/cropsight/veg-analytics-service/internal/policy"
)

// Event type header values on the sink topic.
const (
	EventTypeIndex        = "veg.index.v1"
	EventTypeAnomaly      = "veg.anomaly.v1"
	EventTypeChange       = "veg.change.v1"
	EventTypeAdvisory     = "veg.advisory.v1"
	EventTypePrescription = "veg.prescription.v1"
)

// EvaluatorConfig bundles the analytics thresholds one FieldEvaluator runs with.
type EvaluatorConfig struct {
	Smoother  domain.SmootherConfig
	Baseline  domain.BaselineConfig
	Detector  domain.DetectorConfig
	Trend     domain.TrendConfig
	Phenology domain.PhenologyConfig
	Change    domain.ChangeConfig
	Zone      domain.ZoneConfig
}

// FieldEvaluator implements Evaluator using the domain analytics functions.
// One observation message fans out into an index event plus any anomaly,
// change, and advisory events; one zoning message produces a prescription
// event. Pass a nil soil provider to disable soil enrichment.
type FieldEvaluator struct {
	cfg      EvaluatorConfig
	policies domain.RatePolicyTable
	soil     domain.SoilProvider
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewEvaluator creates a FieldEvaluator.
func NewEvaluator(cfg EvaluatorConfig, policies domain.RatePolicyTable, soil domain.SoilProvider, logger *slog.Logger, metrics *observability.Metrics) *FieldEvaluator {
	return &FieldEvaluator{
		cfg:      cfg,
		policies: policies,
		soil:     soil,
		logger:   logger,
		metrics:  metrics,
	}
}

// Policies returns the input types the evaluator has rate policies for.
func (e *FieldEvaluator) Policies() []domain.InputType {
	inputs := make([]domain.InputType, 0, len(e.policies))
	for input := range e.policies {
		inputs = append(inputs, input)
	}
	return inputs
}

func (e *FieldEvaluator) Evaluate(ctx context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error) {
	start := time.Now()
	defer func() {
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	msg, err := domain.ParseFieldMessage(raw)
	if err != nil {
		return nil, err
	}

	switch msg.Kind {
	case domain.KindObservation:
		return e.evaluateObservation(msg)
	case domain.KindZoning:
		return e.evaluateZoning(ctx, msg)
	default:
		return nil, fmt.Errorf("unhandled message kind %q", msg.Kind)
	}
}

// indexPayload is the veg.index.v1 event body.
type indexPayload struct {
	TenantID      string          `json:"tenant_id"`
	FieldID       string          `json:"field_id"`
	Date          string          `json:"date"`
	Indices       domain.IndexSet `json:"indices"`
	CloudCoverPct float64         `json:"cloud_cover_pct"`
}

// changePayload is the veg.change.v1 event body.
type changePayload struct {
	domain.ChangeEvent
	Secondary []domain.ChangeCandidate `json:"secondary,omitempty"`
}

// advisoryPayload is the veg.advisory.v1 event body: the condensed state of
// the field after one observation, for dashboards and alert routing.
type advisoryPayload struct {
	TenantID       string                 `json:"tenant_id"`
	FieldID        string                 `json:"field_id"`
	Date           string                 `json:"date"`
	Stage          domain.Stage           `json:"stage"`
	DaysInStage    int                    `json:"days_in_stage"`
	Trend          domain.TrendSummary    `json:"trend"`
	AnomalyCount   int                    `json:"anomaly_count"`
	Classification domain.ChangeType      `json:"classification"`
	Phenology      domain.PhenologyResult `json:"phenology"`
}

func (e *FieldEvaluator) evaluateObservation(msg domain.FieldMessage) ([]domain.OutputEvent, error) {
	sample := msg.BandSample()
	indices, err := domain.ComputeIndices(sample)
	if err != nil {
		return nil, err
	}

	history, err := msg.HistoryPoints()
	if err != nil {
		return nil, err
	}

	current := domain.TimeSeriesPoint{
		Date:          sample.Date,
		Indices:       indices,
		CloudCoverPct: sample.CloudCoverPct,
		Valid:         true,
	}
	series := append(history, current)
	if err := domain.ValidateHistory(series); err != nil {
		return nil, fmt.Errorf("observation %s predates its history snapshot: %w", msg.Date, err)
	}

	events := make([]domain.OutputEvent, 0, 4)

	out, err := e.outputEvent(msg.Subject(), EventTypeIndex, indexPayload{
		TenantID:      msg.TenantID,
		FieldID:       msg.FieldID,
		Date:          msg.Date,
		Indices:       indices,
		CloudCoverPct: msg.CloudCoverPct,
	})
	if err != nil {
		return nil, err
	}
	events = append(events, out)
	e.metrics.IndexSetsEmitted.Inc()

	anomalies := e.detectAnomalies(msg, indices, history)
	for i := range anomalies {
		out, err := e.outputEvent(msg.Subject(), EventTypeAnomaly, anomalies[i])
		if err != nil {
			return nil, err
		}
		events = append(events, out)
	}

	smoothed, err := domain.SmoothSeries(series, domain.IndexNDVI, e.cfg.Smoother)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			// Trend, staging, and change need a denoised series. A young
			// field still gets its index and anomaly events.
			e.logger.Debug("series too short to smooth", "subject", msg.Subject(), "points", len(series))
			return events, nil
		}
		return nil, err
	}

	trend, err := domain.AnalyzeTrend(smoothed, e.cfg.Trend)
	if err != nil {
		return nil, err
	}
	phenology := domain.StagePhenology(smoothed, e.cfg.Phenology)

	result := e.detectChange(msg, anomalies, trend, phenology, history, indices)
	if result.Primary != nil {
		out, err := e.outputEvent(msg.Subject(), EventTypeChange, changePayload{
			ChangeEvent: *result.Primary,
			Secondary:   result.Secondary,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, out)
		e.metrics.ChangeEventsDetected.WithLabelValues(string(result.Classification)).Inc()
	}

	out, err = e.outputEvent(msg.Subject(), EventTypeAdvisory, advisoryPayload{
		TenantID:       msg.TenantID,
		FieldID:        msg.FieldID,
		Date:           msg.Date,
		Stage:          phenology.Stage,
		DaysInStage:    phenology.DaysInStage,
		Trend:          trend,
		AnomalyCount:   len(anomalies),
		Classification: result.Classification,
		Phenology:      phenology,
	})
	if err != nil {
		return nil, err
	}
	events = append(events, out)

	return events, nil
}

// detectAnomalies tests every index present on the current observation
// against its own baseline.
func (e *FieldEvaluator) detectAnomalies(msg domain.FieldMessage, indices domain.IndexSet, history []domain.TimeSeriesPoint) []domain.AnomalyEvent {
	if len(history) < e.cfg.Detector.MinHistory {
		e.metrics.InsufficientHistory.Inc()
		return nil
	}

	var anomalies []domain.AnomalyEvent
	for _, id := range domain.KnownIndices() {
		observed, ok := indices.Value(id)
		if !ok {
			continue
		}
		values := historyValues(history, id, e.cfg.Baseline.Window)
		if len(values) == 0 {
			continue
		}
		baseline, err := domain.ComputeBaseline(id, values, e.cfg.Baseline)
		if err != nil {
			continue
		}
		event := domain.DetectAnomaly(domain.AnomalyInput{
			TenantID:      msg.TenantID,
			FieldID:       msg.FieldID,
			Date:          msg.CaptureDate(),
			Index:         id,
			Observed:      observed,
			Baseline:      baseline,
			HistoryLength: len(values),
		}, e.cfg.Detector)
		if event != nil {
			anomalies = append(anomalies, *event)
			e.metrics.AnomaliesDetected.WithLabelValues(string(id), string(event.Type)).Inc()
		}
	}
	return anomalies
}

func (e *FieldEvaluator) detectChange(msg domain.FieldMessage, anomalies []domain.AnomalyEvent, trend domain.TrendSummary, phenology domain.PhenologyResult, history []domain.TimeSeriesPoint, indices domain.IndexSet) domain.ChangeResult {
	var previous domain.IndexSet
	windowStart := msg.CaptureDate()
	if len(history) > 0 {
		last := history[len(history)-1]
		previous = last.Indices
		windowStart = last.Date
	}

	return domain.DetectChange(domain.ChangeInput{
		TenantID:    msg.TenantID,
		FieldID:     msg.FieldID,
		WindowStart: windowStart,
		WindowEnd:   msg.CaptureDate(),
		Anomalies:   anomalies,
		Trend:       trend,
		Phenology:   phenology,
		Previous:    previous,
		Current:     indices,
	}, e.cfg.Change)
}

// prescriptionPayload is the veg.prescription.v1 event body. CSV carries
// the same rates rendered for direct import into farm equipment software.
type prescriptionPayload struct {
	domain.PrescriptionMap
	Zones []domain.Zone `json:"zones"`
	CSV   string        `json:"csv"`
}

func (e *FieldEvaluator) evaluateZoning(ctx context.Context, msg domain.FieldMessage) ([]domain.OutputEvent, error) {
	samples := msg.SpatialSamples()

	zones, err := domain.ClassifyZones(msg.FieldID, samples, e.cfg.Zone)
	if err != nil {
		return nil, err
	}

	input := domain.InputType(msg.InputType)
	prescription, err := domain.GeneratePrescription(msg.TenantID, msg.FieldID, zones, input, e.policies)
	if err != nil {
		return nil, err
	}

	if e.soil != nil {
		lat, lon := msg.Centroid()
		prescription = domain.EnrichWithSoil(ctx, prescription, lat, lon, e.soil, e.logger)
	}

	csv, err := policy.ExportCSV(prescription)
	if err != nil {
		return nil, err
	}

	out, err := e.outputEvent(msg.Subject(), EventTypePrescription, prescriptionPayload{
		PrescriptionMap: prescription,
		Zones:           zones,
		CSV:             string(csv),
	})
	if err != nil {
		return nil, err
	}
	e.metrics.PrescriptionsGenerated.WithLabelValues(string(input)).Inc()

	return []domain.OutputEvent{out}, nil
}

func (e *FieldEvaluator) outputEvent(subject, eventType string, payload any) (domain.OutputEvent, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return domain.OutputEvent{
		Key:   []byte(subject),
		Value: value,
		Headers: map[string]string{
			"event_type":   eventType,
			"processed_at": domain.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// historyValues extracts the trailing window of one index's values from a
// history snapshot. Points missing the index are skipped.
func historyValues(history []domain.TimeSeriesPoint, id domain.IndexID, window int) []float64 {
	values := make([]float64, 0, len(history))
	for _, p := range history {
		if v, ok := p.Indices.Value(id); ok {
			values = append(values, v)
		}
	}
	if window > 0 && len(values) > window {
		values = values[len(values)-window:]
	}
	return values
}
