package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// RateDirection says how application rate correlates with zone rank.
type RateDirection string

const (
	// DirectionInverse gives lower-rank (lower vigor) zones higher rates:
	// the compensatory policy for fertilizer, seed, and lime.
	DirectionInverse RateDirection = "inverse"
	// DirectionDirect gives higher-rank (denser canopy) zones higher
	// rates, e.g. pesticide under disease pressure.
	DirectionDirect RateDirection = "direct"
	// DirectionNDWIInverse keys the rate to recent zone wetness instead
	// of rank: drier zones irrigate more. Falls back to DirectionInverse
	// when the zoning samples carried no NDWI.
	DirectionNDWIInverse RateDirection = "ndwi_inverse"
)

// RatePolicy bounds and shapes the rates for one input type. Supplied by
// external configuration; there are no built-in default rates.
type RatePolicy struct {
	MinRate   float64
	MaxRate   float64
	Unit      string
	Direction RateDirection
	// RoundTo is the practical unit granularity, e.g. 5 kg/ha steps.
	// Zero disables rounding.
	RoundTo float64
}

// RatePolicyTable maps input types to their configured policies.
type RatePolicyTable map[InputType]RatePolicy

// Validate rejects structurally unusable policies. A missing policy is the
// caller's per-request problem (ErrPolicyMissing); a malformed one is a
// configuration bug surfaced at load time.
func (t RatePolicyTable) Validate() error {
	for input, p := range t {
		if p.MinRate < 0 || p.MaxRate < p.MinRate {
			return fmt.Errorf("policy %s: rate bounds [%v,%v] invalid", input, p.MinRate, p.MaxRate)
		}
		if p.Unit == "" {
			return fmt.Errorf("policy %s: unit is required", input)
		}
		switch p.Direction {
		case DirectionInverse, DirectionDirect, DirectionNDWIInverse:
		default:
			return fmt.Errorf("policy %s: unknown direction %q", input, p.Direction)
		}
		if p.RoundTo < 0 {
			return fmt.Errorf("policy %s: round_to must not be negative", input)
		}
	}
	return nil
}

// GeneratePrescription maps a zone set to a variable-rate application table
// for one input type. Rates are linearly interpolated between the policy's
// bounds across the rank range, rounded to the input's unit granularity,
// and always non-negative.
func GeneratePrescription(tenantID, fieldID string, zones []Zone, input InputType, table RatePolicyTable) (PrescriptionMap, error) {
	policy, ok := table[input]
	if !ok {
		return PrescriptionMap{}, fmt.Errorf("input %s: %w", input, ErrPolicyMissing)
	}
	if err := table.Validate(); err != nil {
		return PrescriptionMap{}, err
	}
	if len(zones) == 0 {
		return PrescriptionMap{}, fmt.Errorf("no zones for field %s: %w", fieldID, ErrDegenerateInput)
	}

	rates := make([]PrescriptionRate, len(zones))
	for i, z := range zones {
		rates[i] = PrescriptionRate{
			ZoneID: z.ID,
			Rank:   z.Rank,
			Rate:   roundTo(zoneRate(z, zones, policy), policy.RoundTo, policy),
			Unit:   policy.Unit,
		}
	}

	return PrescriptionMap{
		TenantID:    tenantID,
		FieldID:     fieldID,
		Input:       input,
		Rates:       rates,
		GeneratedAt: clock.Now(),
	}, nil
}

// zoneRate interpolates one zone's rate inside the policy bounds.
func zoneRate(z Zone, zones []Zone, policy RatePolicy) float64 {
	span := policy.MaxRate - policy.MinRate
	if len(zones) == 1 {
		return policy.MinRate + span/2
	}

	if policy.Direction == DirectionNDWIInverse {
		if frac, ok := ndwiFraction(z, zones); ok {
			return policy.MaxRate - frac*span
		}
		// No wetness data in the samples; compensate by rank instead.
	}

	frac := float64(z.Rank-1) / float64(len(zones)-1)
	if policy.Direction == DirectionDirect {
		return policy.MinRate + frac*span
	}
	return policy.MaxRate - frac*span
}

// ndwiFraction normalizes a zone's mean NDWI against the zone set's range.
// Wettest zone maps to 1, driest to 0.
func ndwiFraction(z Zone, zones []Zone) (float64, bool) {
	if z.MeanNDWI == nil {
		return 0, false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, other := range zones {
		if other.MeanNDWI == nil {
			return 0, false
		}
		lo = math.Min(lo, *other.MeanNDWI)
		hi = math.Max(hi, *other.MeanNDWI)
	}
	if hi == lo {
		return 0.5, true
	}
	return (*z.MeanNDWI - lo) / (hi - lo), true
}

func roundTo(rate, granularity float64, policy RatePolicy) float64 {
	if granularity > 0 {
		rate = math.Round(rate/granularity) * granularity
	}
	// Rounding may step past the policy bounds; clamping preserves both
	// the bounds and rank monotonicity.
	return math.Max(policy.MinRate, math.Min(policy.MaxRate, rate))
}

// soil adjustment ---------------------------------------------------------

// Organic-carbon shape for the fertilizer scale-down: fields at or above
// richCarbon get the full reduction, fields at or below leanCarbon none.
const (
	leanCarbon   = 15.0 // g/kg
	richCarbon   = 45.0
	maxSoilScale = 0.15 // at most a 15% reduction
)

// AdjustForSoil scales fertilizer rates down on carbon-rich soils. Other
// input types pass through unchanged. Returns a new map; the input is not
// modified.
func AdjustForSoil(p PrescriptionMap, soil SoilProperties) PrescriptionMap {
	if p.Input != InputFertilizer || soil.OrganicCarbon <= leanCarbon {
		return p
	}
	frac := clamp01((soil.OrganicCarbon - leanCarbon) / (richCarbon - leanCarbon))
	factor := 1 - maxSoilScale*frac

	adjusted := p
	adjusted.Rates = make([]PrescriptionRate, len(p.Rates))
	for i, r := range p.Rates {
		r.Rate = math.Max(0, r.Rate*factor)
		adjusted.Rates[i] = r
	}
	adjusted.SoilAdjusted = true
	return adjusted
}

// EnrichWithSoil looks up topsoil properties at the field centroid and
// applies AdjustForSoil. A nil provider or a failed lookup degrades
// gracefully to the unadjusted prescription.
func EnrichWithSoil(ctx context.Context, p PrescriptionMap, lat, lon float64, provider SoilProvider, logger *slog.Logger) PrescriptionMap {
	if provider == nil {
		return p
	}
	soil, err := provider.Lookup(ctx, lat, lon)
	if err != nil {
		logger.Warn("soil lookup failed, prescription unadjusted",
			"field_id", p.FieldID,
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return p
	}
	return AdjustForSoil(p, soil)
}
