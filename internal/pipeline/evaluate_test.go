package pipeline_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/pipeline"
	"github.com/cropsight/veg-analytics-service/internal/policy"
)

func testEvaluatorConfig() pipeline.EvaluatorConfig {
	return pipeline.EvaluatorConfig{
		Smoother:  domain.SmootherConfig{Window: 5, Degree: 2, MaxCloudCoverPct: 40},
		Baseline:  domain.BaselineConfig{Window: 10},
		Detector:  domain.DetectorConfig{ZScoreThreshold: 2.0, HighSeverityZ: 3.0, SuddenDropDelta: 0.25, MinHistory: 3},
		Trend:     domain.TrendConfig{StableSlope: 0.005, BreakpointDelta: 0.01, BreakpointWindow: 3},
		Phenology: domain.PhenologyConfig{MinPoints: 4, PeakProximity: 0.9, LowFraction: 0.25, HarvestDropDelta: 0.25},
		Change:    domain.ChangeConfig{SharpNDVIDrop: 0.25, NDWIRise: 0.15, FloodNDVIDrop: 0.25, BareSoilNDVI: 0.2, PlantingRise: 0.15},
		Zone:      domain.ZoneConfig{ZoneCount: 3, MinSamples: 5},
	}
}

func newTestEvaluator(t *testing.T) *pipeline.FieldEvaluator {
	t.Helper()
	return pipeline.NewEvaluator(testEvaluatorConfig(), policy.Default(), nil, slog.Default(), newTestMetrics())
}

// bandsForNDVI derives red/nir reflectance so ComputeIndices yields exactly
// the requested NDVI.
func bandsForNDVI(v float64) map[string]float64 {
	red := 0.1
	return map[string]float64{
		"red": red,
		"nir": red * (1 + v) / (1 - v),
	}
}

func historyNDVI(start time.Time, values []float64) []domain.HistoryPoint {
	points := make([]domain.HistoryPoint, len(values))
	for i, v := range values {
		points[i] = domain.HistoryPoint{
			Date:    start.AddDate(0, 0, i).Format("2006-01-02"),
			Indices: map[string]float64{"ndvi": v},
		}
	}
	return points
}

func observationRaw(t *testing.T, history []domain.HistoryPoint, date string, ndvi float64) domain.RawEvent {
	t.Helper()
	msg := domain.FieldMessage{
		Kind:     domain.KindObservation,
		TenantID: "t1",
		FieldID:  "f1",
		Date:     date,
		Bands:    bandsForNDVI(ndvi),
		History:  history,
	}
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(msg.Subject()), Value: value, Topic: "field-observations"}
}

func eventTypes(events []domain.OutputEvent) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Headers["event_type"]
	}
	return types
}

func TestFieldEvaluator_Observation_SteadySeason(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	history := historyNDVI(start, []float64{0.65, 0.67, 0.66, 0.68, 0.65, 0.66, 0.67})
	raw := observationRaw(t, history, "2024-06-08", 0.66)

	ev := newTestEvaluator(t)
	events, err := ev.Evaluate(context.Background(), raw)
	require.NoError(t, err)

	types := eventTypes(events)
	assert.Contains(t, types, pipeline.EventTypeIndex)
	assert.Contains(t, types, pipeline.EventTypeAdvisory)
	assert.NotContains(t, types, pipeline.EventTypeAnomaly, "a typical value must not alarm")

	for _, e := range events {
		assert.Equal(t, []byte("t1/f1"), e.Key)
	}

	var idx indexEventBody
	require.NoError(t, json.Unmarshal(events[0].Value, &idx))
	assert.Equal(t, "t1", idx.TenantID)
	assert.InDelta(t, 0.66, idx.Indices["ndvi"].Value, 1e-9)
}

type indexEventBody struct {
	TenantID string          `json:"tenant_id"`
	FieldID  string          `json:"field_id"`
	Indices  domain.IndexSet `json:"indices"`
}

func TestFieldEvaluator_Observation_SuddenDrop(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	history := historyNDVI(start, []float64{0.65, 0.67, 0.66, 0.68, 0.65, 0.66, 0.67})
	raw := observationRaw(t, history, "2024-06-08", 0.35)

	ev := newTestEvaluator(t)
	events, err := ev.Evaluate(context.Background(), raw)
	require.NoError(t, err)

	types := eventTypes(events)
	assert.Contains(t, types, pipeline.EventTypeAnomaly)
	assert.Contains(t, types, pipeline.EventTypeChange)

	for _, e := range events {
		if e.Headers["event_type"] != pipeline.EventTypeAnomaly {
			continue
		}
		var anomaly domain.AnomalyEvent
		require.NoError(t, json.Unmarshal(e.Value, &anomaly))
		assert.Equal(t, domain.AnomalySuddenDrop, anomaly.Type)
		assert.Equal(t, domain.SeverityHigh, anomaly.Severity)
		assert.NotEmpty(t, anomaly.ID)
	}
}

func TestFieldEvaluator_Observation_DeterministicEventIDs(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	history := historyNDVI(start, []float64{0.65, 0.67, 0.66, 0.68, 0.65, 0.66, 0.67})
	raw := observationRaw(t, history, "2024-06-08", 0.35)

	ev := newTestEvaluator(t)
	first, err := ev.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), raw)
	require.NoError(t, err)

	ids := func(events []domain.OutputEvent) []string {
		var out []string
		for _, e := range events {
			if e.Headers["event_type"] != pipeline.EventTypeAnomaly {
				continue
			}
			var anomaly domain.AnomalyEvent
			require.NoError(t, json.Unmarshal(e.Value, &anomaly))
			out = append(out, anomaly.ID)
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second), "replaying a message must produce identical event ids")
}

func TestFieldEvaluator_Observation_ShortHistory(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	history := historyNDVI(start, []float64{0.30, 0.35})
	raw := observationRaw(t, history, "2024-06-03", 0.40)

	ev := newTestEvaluator(t)
	events, err := ev.Evaluate(context.Background(), raw)
	require.NoError(t, err)

	// Too short to smooth: index event only, no detection output at all.
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.EventTypeIndex, events[0].Headers["event_type"])
	_, err = time.Parse(time.RFC3339, events[0].Headers["processed_at"])
	assert.NoError(t, err)
}

func TestFieldEvaluator_Observation_PredatesHistory(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	history := historyNDVI(start, []float64{0.30, 0.35, 0.40})
	raw := observationRaw(t, history, "2024-06-02", 0.40)

	ev := newTestEvaluator(t)
	_, err := ev.Evaluate(context.Background(), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnorderedHistory)
}

func TestFieldEvaluator_RejectsUnknownKind(t *testing.T) {
	value, err := json.Marshal(map[string]string{
		"kind": "telemetry", "tenant_id": "t1", "field_id": "f1", "date": "2024-06-01",
	})
	require.NoError(t, err)

	ev := newTestEvaluator(t)
	_, err = ev.Evaluate(context.Background(), domain.RawEvent{Value: value})
	assert.ErrorContains(t, err, "unknown message kind")
}

func zoningRaw(t *testing.T, input string, values []float64) domain.RawEvent {
	t.Helper()
	samples := make([]domain.ZoningSample, len(values))
	for i, v := range values {
		samples[i] = domain.ZoningSample{
			Lat:   40.0 + float64(i)*0.0001,
			Lon:   -95.0 + float64(i)*0.0001,
			Value: v,
		}
	}
	msg := domain.FieldMessage{
		Kind:      domain.KindZoning,
		TenantID:  "t1",
		FieldID:   "f1",
		Date:      "2024-06-08",
		InputType: input,
		Samples:   samples,
	}
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(msg.Subject()), Value: value, Topic: "field-observations"}
}

func TestFieldEvaluator_Zoning_Fertilizer(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 0.3 + float64(i)*0.01
	}
	raw := zoningRaw(t, "fertilizer", values)

	ev := newTestEvaluator(t)
	events, err := ev.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.EventTypePrescription, events[0].Headers["event_type"])

	var body struct {
		domain.PrescriptionMap
		Zones []domain.Zone `json:"zones"`
		CSV   string        `json:"csv"`
	}
	require.NoError(t, json.Unmarshal(events[0].Value, &body))
	assert.Equal(t, domain.InputFertilizer, body.Input)
	require.Len(t, body.Rates, 3)
	assert.Len(t, body.Zones, 3)
	assert.Contains(t, body.CSV, "zone,rank,rate,unit")

	// Inverse direction: the weakest zone gets the most fertilizer.
	for i := 1; i < len(body.Rates); i++ {
		assert.Equal(t, body.Rates[i-1].Rank+1, body.Rates[i].Rank)
		assert.GreaterOrEqual(t, body.Rates[i-1].Rate, body.Rates[i].Rate)
	}
}

func TestFieldEvaluator_Zoning_MissingPolicy(t *testing.T) {
	raw := zoningRaw(t, "pesticide", []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8})

	ev := newTestEvaluator(t)
	_, err := ev.Evaluate(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrPolicyMissing)
}

func TestFieldEvaluator_Zoning_NoSamples(t *testing.T) {
	raw := zoningRaw(t, "fertilizer", nil)

	ev := newTestEvaluator(t)
	_, err := ev.Evaluate(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrDegenerateInput)
}

func TestFieldEvaluator_Policies(t *testing.T) {
	ev := newTestEvaluator(t)
	inputs := ev.Policies()
	assert.Len(t, inputs, 3)
	assert.Contains(t, inputs, domain.InputFertilizer)
}
