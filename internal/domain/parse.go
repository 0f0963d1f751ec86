package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Message kinds accepted on the source topic.
const (
	KindObservation = "observation"
	KindZoning      = "zoning"
)

// dateLayout is the wire format for capture dates.
const dateLayout = "2006-01-02"

// FieldMessage is the flat JSON envelope produced by the upstream intake
// service. Observation messages carry band reflectance plus the field's
// history snapshot; zoning messages carry spatial samples and a target
// input type. The history snapshot travels with the message so the core
// stays stateless: repeated delivery of the same message is deterministic.
type FieldMessage struct {
	Kind          string             `json:"kind"`
	TenantID      string             `json:"tenant_id"`
	FieldID       string             `json:"field_id"`
	Date          string             `json:"date"` // YYYY-MM-DD
	Bands         map[string]float64 `json:"bands,omitempty"`
	CloudCoverPct float64            `json:"cloud_cover_pct,omitempty"`
	PlantingDate  string             `json:"planting_date,omitempty"`
	History       []HistoryPoint     `json:"history,omitempty"`
	InputType     string             `json:"input_type,omitempty"`
	Samples       []ZoningSample     `json:"samples,omitempty"`
}

// HistoryPoint is one prior dated index set in an observation message.
type HistoryPoint struct {
	Date          string             `json:"date"`
	Indices       map[string]float64 `json:"indices"`
	CloudCoverPct float64            `json:"cloud_cover_pct,omitempty"`
}

// ZoningSample is one spatial index sample in a zoning message.
type ZoningSample struct {
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Value float64  `json:"value"`
	NDWI  *float64 `json:"ndwi,omitempty"`
}

// ParseFieldMessage deserializes and structurally validates a raw message.
// Detection-level problems (short history, missing bands for an index) are
// not errors here; only an unusable envelope is.
func ParseFieldMessage(raw RawEvent) (FieldMessage, error) {
	var msg FieldMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return FieldMessage{}, fmt.Errorf("parse field message: %w", err)
	}

	if msg.TenantID == "" || msg.FieldID == "" {
		return FieldMessage{}, fmt.Errorf("field message missing tenant or field id")
	}
	if _, err := time.Parse(dateLayout, msg.Date); err != nil {
		return FieldMessage{}, fmt.Errorf("field message date %q: %w", msg.Date, err)
	}

	switch msg.Kind {
	case KindObservation:
		if len(msg.Bands) == 0 {
			return FieldMessage{}, fmt.Errorf("observation for %s has no bands: %w",
				msg.Subject(), ErrInvalidBandSample)
		}
	case KindZoning:
		if msg.InputType == "" {
			return FieldMessage{}, fmt.Errorf("zoning for %s has no input type", msg.Subject())
		}
	default:
		return FieldMessage{}, fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	return msg, nil
}

// Subject is the tenant/field-scoped routing key for emitted events.
func (m FieldMessage) Subject() string {
	return m.TenantID + "/" + m.FieldID
}

// CaptureDate returns the parsed capture date. ParseFieldMessage has
// already validated the format.
func (m FieldMessage) CaptureDate() time.Time {
	t, _ := time.Parse(dateLayout, m.Date)
	return t
}

// BandSample converts an observation message into the core sample type.
func (m FieldMessage) BandSample() BandSample {
	bands := make(map[Band]float64, len(m.Bands))
	for name, v := range m.Bands {
		bands[Band(name)] = v
	}
	return BandSample{
		TenantID:      m.TenantID,
		FieldID:       m.FieldID,
		Date:          m.CaptureDate(),
		Bands:         bands,
		CloudCoverPct: m.CloudCoverPct,
		Valid:         true,
	}
}

// HistoryPoints converts the message's history snapshot into core series
// points. Entries with unparseable dates fail the whole conversion: a
// corrupt snapshot must not silently shorten a baseline.
func (m FieldMessage) HistoryPoints() ([]TimeSeriesPoint, error) {
	points := make([]TimeSeriesPoint, 0, len(m.History))
	for _, h := range m.History {
		date, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return nil, fmt.Errorf("history date %q: %w", h.Date, err)
		}
		indices := make(IndexSet, len(h.Indices))
		for name, v := range h.Indices {
			indices[IndexID(name)] = IndexValue{Value: v}
		}
		points = append(points, TimeSeriesPoint{
			Date:          date,
			Indices:       indices,
			CloudCoverPct: h.CloudCoverPct,
			Valid:         true,
		})
	}
	if err := ValidateHistory(points); err != nil {
		return nil, err
	}
	return points, nil
}

// SpatialSamples converts a zoning message's samples to core samples.
func (m FieldMessage) SpatialSamples() []SpatialSample {
	out := make([]SpatialSample, len(m.Samples))
	for i, s := range m.Samples {
		out[i] = SpatialSample{
			Point: orb.Point{s.Lon, s.Lat},
			Value: s.Value,
			NDWI:  s.NDWI,
		}
	}
	return out
}

// Centroid averages the zoning sample coordinates, for soil lookups.
func (m FieldMessage) Centroid() (lat, lon float64) {
	if len(m.Samples) == 0 {
		return 0, 0
	}
	for _, s := range m.Samples {
		lat += s.Lat
		lon += s.Lon
	}
	n := float64(len(m.Samples))
	return lat / n, lon / n
}
