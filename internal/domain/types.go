package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Band identifies a spectral band on a BandSample. Reflectance values are
// surface reflectance in [0,1], already atmospherically corrected upstream.
type Band string

const (
	BandBlue    Band = "blue"
	BandGreen   Band = "green"
	BandRed     Band = "red"
	BandRedEdge Band = "red_edge"
	BandNIR     Band = "nir"
	BandSWIR    Band = "swir"
)

// BandSample is one field observation: per-band reflectance for a single
// capture date. Missing bands are simply absent from the map. Immutable
// once created; functions in this package never modify it.
type BandSample struct {
	TenantID      string
	FieldID       string
	Date          time.Time
	Bands         map[Band]float64
	CloudCoverPct float64
	Valid         bool
}

// Band returns the reflectance for b and whether it is present.
func (s BandSample) Band(b Band) (float64, bool) {
	v, ok := s.Bands[b]
	return v, ok
}

// IndexID identifies a vegetation index derived from band reflectance.
type IndexID string

const (
	IndexNDVI  IndexID = "ndvi"
	IndexNDWI  IndexID = "ndwi"
	IndexEVI   IndexID = "evi"
	IndexSAVI  IndexID = "savi"
	IndexGNDVI IndexID = "gndvi"
	IndexNDRE  IndexID = "ndre"
	IndexLCI   IndexID = "lci"
)

// IndexValue is a computed index value. LowQuality is set when the raw
// formula produced a value outside the index's documented range before
// clamping, which usually indicates a sensor or masking problem upstream.
type IndexValue struct {
	Value      float64 `json:"value"`
	LowQuality bool    `json:"low_quality,omitempty"`
}

// IndexSet maps index identifiers to computed values for one observation.
// Indices whose required bands were missing are absent from the map.
type IndexSet map[IndexID]IndexValue

// Value returns the computed value for id and whether it is present.
func (s IndexSet) Value(id IndexID) (float64, bool) {
	v, ok := s[id]
	return v.Value, ok
}

// TimeSeriesPoint is one dated entry in a field's index history.
type TimeSeriesPoint struct {
	Date          time.Time
	Indices       IndexSet
	CloudCoverPct float64
	Valid         bool
}

// ValidateHistory checks that points are in strictly increasing date order.
// Duplicate dates are rejected rather than merged; the upstream history
// service owns deduplication and a duplicate here means its snapshot is bad.
func ValidateHistory(points []TimeSeriesPoint) error {
	for i := 1; i < len(points); i++ {
		if !points[i].Date.After(points[i-1].Date) {
			return fmt.Errorf("history not strictly chronological at %s: %w",
				points[i].Date.Format("2006-01-02"), ErrUnorderedHistory)
		}
	}
	return nil
}

// SmoothedPoint is one denoised estimate in a SmoothedSeries. Interpolated
// marks values synthesized for rejected or missing observations.
type SmoothedPoint struct {
	Date         time.Time
	Value        float64
	Interpolated bool
}

// SmoothedSeries is a denoised single-index series. Same chronological
// ordering rules as the raw history it came from.
type SmoothedSeries struct {
	Index  IndexID
	Points []SmoothedPoint
}

// Values returns the smoothed values in chronological order.
func (s SmoothedSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Span returns the first and last dates of the series. Zero times when empty.
func (s SmoothedSeries) Span() (time.Time, time.Time) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Points[0].Date, s.Points[len(s.Points)-1].Date
}

// Baseline summarizes a field's recent history for one index. Baselines are
// value types: recomputed from the current snapshot, never mutated in place.
type Baseline struct {
	Index       IndexID         `json:"index"`
	Window      int             `json:"window"`
	SampleCount int             `json:"sample_count"`
	Mean        float64         `json:"mean"`
	StdDev      float64         `json:"std_dev"`
	Percentiles map[int]float64 `json:"percentiles"` // keys 10, 25, 50, 75, 90
}

// AnomalyType classifies the shape of a baseline deviation.
type AnomalyType string

const (
	AnomalySuddenDrop       AnomalyType = "sudden_drop"
	AnomalyDecline          AnomalyType = "decline"
	AnomalyUnexpectedGrowth AnomalyType = "unexpected_growth"
)

// Severity grades how far outside the baseline an anomaly sits.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyEvent records a statistically significant deviation of one index
// from its baseline. Immutable fact once created.
type AnomalyEvent struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	FieldID      string      `json:"field_id"`
	Date         time.Time   `json:"date"`
	Index        IndexID     `json:"index"`
	Observed     float64     `json:"observed"`
	BaselineMean float64     `json:"baseline_mean"`
	BaselineStd  float64     `json:"baseline_std"`
	Deviation    float64     `json:"deviation"` // z-score against the baseline
	Type         AnomalyType `json:"type"`
	Severity     Severity    `json:"severity"`
	DetectedAt   time.Time   `json:"detected_at"`
}

// TrendDirection is the sign of a series' slope after the stable band.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendSummary characterizes direction and rate over a window. Recomputed
// per request; it has no persistent identity.
type TrendSummary struct {
	Index       IndexID        `json:"index"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Slope       float64        `json:"slope"` // index units per day
	Direction   TrendDirection `json:"direction"`
	Confidence  float64        `json:"confidence"` // [0,1]
	Breakpoints []time.Time    `json:"breakpoints,omitempty"`
}

// Stage is a crop-independent growth stage inferred from series shape.
type Stage string

const (
	StageEmergence        Stage = "emergence"
	StageVegetative       Stage = "vegetative"
	StagePeak             Stage = "flowering_peak"
	StageMaturity         Stage = "maturity"
	StageSenescence       Stage = "senescence"
	StageHarvested        Stage = "harvested"
	StageInsufficientData Stage = "insufficient_data"
)

// PhenologyResult is the stager's output for one growing cycle. DaysInStage
// is an estimate derived from the trailing run of points consistent with
// the stage and the series' observation cadence.
type PhenologyResult struct {
	Stage       Stage      `json:"stage"`
	DaysInStage int        `json:"days_in_stage"`
	PeakValue   float64    `json:"peak_value,omitempty"`
	PeakDate    *time.Time `json:"peak_date,omitempty"`
	SeasonStart *time.Time `json:"season_start,omitempty"`
	SeasonEnd   *time.Time `json:"season_end,omitempty"`
}

// ChangeType is the closed set of discrete change classifications.
type ChangeType string

const (
	ChangeVegetationGrowth  ChangeType = "vegetation_growth"
	ChangeVegetationDecline ChangeType = "vegetation_decline"
	ChangeWaterStress       ChangeType = "water_stress"
	ChangeFlooding          ChangeType = "flooding"
	ChangeHarvest           ChangeType = "harvest"
	ChangePlanting          ChangeType = "planting"
	ChangeCropDamage        ChangeType = "crop_damage"
	ChangeLandClearing      ChangeType = "land_clearing"
	ChangeNone              ChangeType = "no_change"
)

// ChangeEvent records a classified change between two observations.
// Immutable fact once created.
type ChangeEvent struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	FieldID     string     `json:"field_id"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Type        ChangeType `json:"type"`
	Magnitude   float64    `json:"magnitude"`
	Confidence  float64    `json:"confidence"` // [0,1]
	Indices     []IndexID  `json:"indices"`    // corroborating indices
	DetectedAt  time.Time  `json:"detected_at"`
}

// ChangeCandidate is a lower-priority classification that also matched.
type ChangeCandidate struct {
	Type       ChangeType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// ChangeResult is one detector evaluation: the winning classification,
// a primary event when the classification is not no_change, and the
// remaining matches ranked by confidence.
type ChangeResult struct {
	Classification ChangeType
	Primary        *ChangeEvent
	Secondary      []ChangeCandidate
}

// SpatialSample is one spatial index measurement inside a field, used for
// zoning. Point is lon/lat (WGS-84), matching orb's convention.
type SpatialSample struct {
	Point orb.Point
	Value float64
	NDWI  *float64
}

// Zone is one management-zone partition of a field. Rank 1 is the lowest
// productivity band. A field's zone set partitions its samples exhaustively
// and without overlap.
type Zone struct {
	ID          string         `json:"id"`
	Rank        int            `json:"rank"`
	Extent      orb.Bound      `json:"-"`
	Points      orb.MultiPoint `json:"-"`
	SampleCount int            `json:"sample_count"`
	Mean        float64        `json:"mean"`
	Min         float64        `json:"min"`
	Max         float64        `json:"max"`
	MeanNDWI    *float64       `json:"mean_ndwi,omitempty"`
}

// InputType is an agronomic input a prescription can target.
type InputType string

const (
	InputFertilizer InputType = "fertilizer"
	InputSeed       InputType = "seed"
	InputLime       InputType = "lime"
	InputPesticide  InputType = "pesticide"
	InputIrrigation InputType = "irrigation"
)

// PrescriptionRate is the recommended application rate for one zone.
type PrescriptionRate struct {
	ZoneID string  `json:"zone_id" csv:"zone"`
	Rank   int     `json:"rank" csv:"rank"`
	Rate   float64 `json:"rate" csv:"rate"`
	Unit   string  `json:"unit" csv:"unit"`
}

// PrescriptionMap is a per-zone variable-rate application table.
type PrescriptionMap struct {
	TenantID     string             `json:"tenant_id"`
	FieldID      string             `json:"field_id"`
	Input        InputType          `json:"input"`
	Rates        []PrescriptionRate `json:"rates"`
	SoilAdjusted bool               `json:"soil_adjusted,omitempty"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// SoilProperties are topsoil figures used to adjust fertilizer rates.
type SoilProperties struct {
	OrganicCarbon float64 `json:"organic_carbon"` // g/kg
	PHWater       float64 `json:"ph_water"`
	ClayPct       float64 `json:"clay_pct"`
}

// SoilProvider looks up topsoil properties at a coordinate.
type SoilProvider interface {
	Lookup(ctx context.Context, lat, lon float64) (SoilProperties, error)
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is a serialized signal destined for the sink topic. Headers
// carry the versioned event-type identifier; Key is the tenant/field subject.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
