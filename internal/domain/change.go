package domain

import "time"

// ChangeConfig holds the classification thresholds for the change detector.
// The rule ordering itself is policy too; see changeRules.
type ChangeConfig struct {
	// SharpNDVIDrop is the NDVI delta magnitude read as abrupt.
	SharpNDVIDrop float64
	// NDWIRise is the NDWI delta that corroborates surface water.
	NDWIRise float64
	// FloodNDVIDrop is the simultaneous NDVI drop required for flooding.
	FloodNDVIDrop float64
	// BareSoilNDVI is the NDVI at and below which ground reads as bare.
	BareSoilNDVI float64
	// PlantingRise is the NDVI delta that reads as new growth from bare soil.
	PlantingRise float64
}

// evidence is the precomputed view of one evaluation that the rules match
// against.
type evidence struct {
	in           ChangeInput
	cfg          ChangeConfig
	ndviDelta    float64
	ndwiDelta    float64
	hasNDVI      bool
	hasNDWI      bool
	currentNDVI  float64
	previousNDVI float64
	suddenDrop   *AnomalyEvent
	topSeverity  Severity
}

// ChangeInput is everything one change evaluation consumes: the detector
// outputs for the newest observation plus raw index deltas between the two
// most recent observations.
type ChangeInput struct {
	TenantID    string
	FieldID     string
	WindowStart time.Time
	WindowEnd   time.Time
	Anomalies   []AnomalyEvent
	Trend       TrendSummary
	Phenology   PhenologyResult
	Previous    IndexSet
	Current     IndexSet
}

// changeRule is one (predicate, classification) pair. Rules run in order;
// the first match wins the primary slot and later matches become ranked
// secondary candidates.
type changeRule struct {
	ctype ChangeType
	match func(ev evidence) (ok bool, magnitude float64, indices []IndexID)
}

// changeRules returns the default ordered rule table. The relative order of
// crop_damage, water_stress, and the trend-only rules is agronomy policy,
// not physics; reorder here, not in the detector.
func changeRules(cfg ChangeConfig) []changeRule {
	return []changeRule{
		{ChangeHarvest, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.hasNDVI && ev.ndviDelta <= -cfg.SharpNDVIDrop &&
				ev.in.Phenology.Stage == StageHarvested
			return ok, abs(ev.ndviDelta), []IndexID{IndexNDVI}
		}},
		{ChangeFlooding, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.hasNDWI && ev.hasNDVI &&
				ev.ndwiDelta >= cfg.NDWIRise && ev.ndviDelta <= -cfg.FloodNDVIDrop
			return ok, ev.ndwiDelta, []IndexID{IndexNDWI, IndexNDVI}
		}},
		{ChangeCropDamage, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.suddenDrop != nil &&
				ev.in.Phenology.Stage != StageHarvested &&
				ev.in.Phenology.Stage != StageInsufficientData &&
				(!ev.hasNDWI || ev.ndwiDelta < cfg.NDWIRise)
			return ok, abs(ev.ndviDelta), []IndexID{IndexNDVI}
		}},
		{ChangeLandClearing, func(ev evidence) (bool, float64, []IndexID) {
			// A sharp drop to bare ground with no crop-cycle context
			// reads as clearing, not damage to a known crop.
			ok := ev.hasNDVI && ev.ndviDelta <= -cfg.SharpNDVIDrop &&
				ev.currentNDVI <= cfg.BareSoilNDVI &&
				ev.in.Phenology.Stage == StageInsufficientData
			return ok, abs(ev.ndviDelta), []IndexID{IndexNDVI}
		}},
		{ChangeWaterStress, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.in.Trend.Direction == TrendDecreasing &&
				ev.hasNDWI && ev.ndwiDelta < 0 &&
				ev.suddenDrop == nil
			return ok, abs(ev.ndwiDelta), []IndexID{IndexNDVI, IndexNDWI}
		}},
		{ChangePlanting, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.hasNDVI && ev.previousNDVI <= cfg.BareSoilNDVI+0.1 &&
				ev.ndviDelta >= cfg.PlantingRise &&
				(ev.in.Phenology.Stage == StageHarvested ||
					ev.in.Phenology.Stage == StageEmergence ||
					ev.previousNDVI <= cfg.BareSoilNDVI)
			return ok, ev.ndviDelta, []IndexID{IndexNDVI}
		}},
		{ChangeVegetationGrowth, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.in.Trend.Direction == TrendIncreasing
			return ok, ev.in.Trend.Slope, []IndexID{ev.in.Trend.Index}
		}},
		{ChangeVegetationDecline, func(ev evidence) (bool, float64, []IndexID) {
			ok := ev.in.Trend.Direction == TrendDecreasing
			return ok, abs(ev.in.Trend.Slope), []IndexID{ev.in.Trend.Index}
		}},
	}
}

// DetectChange fuses anomaly, trend, and phenology signals with raw index
// deltas into at most one primary ChangeEvent. Rules are evaluated in
// priority order; the first match wins and the rest rank as secondary
// candidates. When nothing matches the classification is no_change and no
// event is produced.
func DetectChange(in ChangeInput, cfg ChangeConfig) ChangeResult {
	ev := buildEvidence(in, cfg)

	result := ChangeResult{Classification: ChangeNone}
	for _, rule := range changeRules(cfg) {
		ok, magnitude, indices := rule.match(ev)
		if !ok {
			continue
		}
		confidence := changeConfidence(ev, len(indices))
		if result.Primary == nil {
			result.Classification = rule.ctype
			result.Primary = &ChangeEvent{
				ID: eventID("change", in.TenantID, in.FieldID,
					string(rule.ctype), in.WindowEnd.Format("2006-01-02")),
				TenantID:    in.TenantID,
				FieldID:     in.FieldID,
				WindowStart: in.WindowStart,
				WindowEnd:   in.WindowEnd,
				Type:        rule.ctype,
				Magnitude:   magnitude,
				Confidence:  confidence,
				Indices:     indices,
				DetectedAt:  clock.Now(),
			}
			continue
		}
		result.Secondary = append(result.Secondary, ChangeCandidate{
			Type:       rule.ctype,
			Confidence: confidence,
		})
	}
	return result
}

func buildEvidence(in ChangeInput, cfg ChangeConfig) evidence {
	ev := evidence{in: in, cfg: cfg}

	prevNDVI, prevOK := in.Previous.Value(IndexNDVI)
	curNDVI, curOK := in.Current.Value(IndexNDVI)
	ev.hasNDVI = prevOK && curOK
	ev.previousNDVI = prevNDVI
	ev.currentNDVI = curNDVI
	if ev.hasNDVI {
		ev.ndviDelta = curNDVI - prevNDVI
	}

	prevNDWI, prevOK := in.Previous.Value(IndexNDWI)
	curNDWI, curOK := in.Current.Value(IndexNDWI)
	ev.hasNDWI = prevOK && curOK
	if ev.hasNDWI {
		ev.ndwiDelta = curNDWI - prevNDWI
	}

	for i := range in.Anomalies {
		a := &in.Anomalies[i]
		if a.Type == AnomalySuddenDrop && ev.suddenDrop == nil {
			ev.suddenDrop = a
		}
		if a.Severity == SeverityHigh {
			ev.topSeverity = SeverityHigh
		} else if ev.topSeverity == "" {
			ev.topSeverity = SeverityMedium
		}
	}
	return ev
}

// changeConfidence combines anomaly severity, trend confidence, and the
// corroborating index count, capped at 1.
func changeConfidence(ev evidence, corroborating int) float64 {
	var severityScore float64
	switch ev.topSeverity {
	case SeverityHigh:
		severityScore = 1
	case SeverityMedium:
		severityScore = 0.6
	}
	c := 0.3 + 0.25*severityScore + 0.3*ev.in.Trend.Confidence +
		0.1*float64(min(corroborating, 3))
	return clamp01(c)
}
