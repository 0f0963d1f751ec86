package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DetectorConfig holds the anomaly-detection thresholds. All of them are
// configuration rather than constants; the defaults live in the config
// package and match long-observed field behavior.
type DetectorConfig struct {
	// ZScoreThreshold is the minimum |z| for any anomaly.
	ZScoreThreshold float64
	// HighSeverityZ is the |z| at and above which severity is high.
	HighSeverityZ float64
	// SuddenDropDelta is the absolute index drop that, combined with a
	// high-severity z, classifies sudden_drop instead of decline.
	SuddenDropDelta float64
	// MinHistory is the minimum number of historical points required
	// before any anomaly is raised.
	MinHistory int
}

// stdDevFloor keeps z-scores finite against a flat baseline. A history of
// identical values has zero spread; without a floor any deviation would be
// an infinite z.
const stdDevFloor = 1e-3

// AnomalyInput is one observation to test against its baseline.
type AnomalyInput struct {
	TenantID      string
	FieldID       string
	Date          time.Time
	Index         IndexID
	Observed      float64
	Baseline      Baseline
	HistoryLength int
}

// DetectAnomaly compares an observation to its baseline and returns an
// AnomalyEvent when the deviation crosses the configured threshold, or nil.
//
// Fails toward silence: below the minimum history length no event is
// raised regardless of the observed value, because a baseline built from
// one or two points says nothing about what is normal for the field.
func DetectAnomaly(in AnomalyInput, cfg DetectorConfig) *AnomalyEvent {
	if in.HistoryLength < cfg.MinHistory {
		return nil
	}

	std := in.Baseline.StdDev
	if std < stdDevFloor {
		std = stdDevFloor
	}
	z := (in.Observed - in.Baseline.Mean) / std
	if abs(z) < cfg.ZScoreThreshold {
		return nil
	}

	var atype AnomalyType
	switch {
	case z < 0 && in.Baseline.Mean-in.Observed >= cfg.SuddenDropDelta && abs(z) >= cfg.HighSeverityZ:
		atype = AnomalySuddenDrop
	case z < 0:
		atype = AnomalyDecline
	default:
		atype = AnomalyUnexpectedGrowth
	}

	severity := SeverityMedium
	if abs(z) >= cfg.HighSeverityZ {
		severity = SeverityHigh
	}

	return &AnomalyEvent{
		ID:           eventID("anomaly", in.TenantID, in.FieldID, string(in.Index), in.Date.Format("2006-01-02")),
		TenantID:     in.TenantID,
		FieldID:      in.FieldID,
		Date:         in.Date,
		Index:        in.Index,
		Observed:     in.Observed,
		BaselineMean: in.Baseline.Mean,
		BaselineStd:  in.Baseline.StdDev,
		Deviation:    z,
		Type:         atype,
		Severity:     severity,
		DetectedAt:   clock.Now(),
	}
}

// eventID produces a deterministic ID from an event's key fields.
// Deterministic IDs make replays idempotent for downstream consumers.
func eventID(kind string, parts ...string) string {
	input := kind
	for _, p := range parts {
		input += "|" + p
	}
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%s-%s", kind, hex.EncodeToString(hash[:8]))
}
