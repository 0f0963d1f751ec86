package domain

// Vegetation index formulas. Each index is a fixed algebraic combination of
// 2-4 bands. A zero denominator yields 0 rather than failing; a raw value
// outside the index's documented range is clamped and flagged low quality.

// Soil-brightness correction constants for EVI and SAVI.
const (
	eviGain      = 2.5
	eviCoeffRed  = 6.0
	eviCoeffBlue = 7.5
	eviCanopyBg  = 1.0
	saviSoilL    = 0.5
	saviBrightGn = 1.5
)

type indexDef struct {
	bands    []Band
	min, max float64
	compute  func(b map[Band]float64) float64
}

var indexDefs = map[IndexID]indexDef{
	IndexNDVI: {
		bands: []Band{BandNIR, BandRed},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			return normalizedDiff(b[BandNIR], b[BandRed])
		},
	},
	IndexNDWI: {
		bands: []Band{BandGreen, BandNIR},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			return normalizedDiff(b[BandGreen], b[BandNIR])
		},
	},
	IndexEVI: {
		bands: []Band{BandNIR, BandRed, BandBlue},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			den := b[BandNIR] + eviCoeffRed*b[BandRed] - eviCoeffBlue*b[BandBlue] + eviCanopyBg
			if den == 0 {
				return 0
			}
			return eviGain * (b[BandNIR] - b[BandRed]) / den
		},
	},
	IndexSAVI: {
		bands: []Band{BandNIR, BandRed},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			den := b[BandNIR] + b[BandRed] + saviSoilL
			if den == 0 {
				return 0
			}
			return saviBrightGn * (b[BandNIR] - b[BandRed]) / den
		},
	},
	IndexGNDVI: {
		bands: []Band{BandNIR, BandGreen},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			return normalizedDiff(b[BandNIR], b[BandGreen])
		},
	},
	IndexNDRE: {
		bands: []Band{BandNIR, BandRedEdge},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			return normalizedDiff(b[BandNIR], b[BandRedEdge])
		},
	},
	IndexLCI: {
		bands: []Band{BandNIR, BandRedEdge, BandRed},
		min:   -1, max: 1,
		compute: func(b map[Band]float64) float64 {
			den := b[BandNIR] + b[BandRed]
			if den == 0 {
				return 0
			}
			return (b[BandNIR] - b[BandRedEdge]) / den
		},
	},
}

// normalizedDiff computes (a-b)/(a+b) with a 0 sentinel for a zero denominator.
func normalizedDiff(a, b float64) float64 {
	den := a + b
	if den == 0 {
		return 0
	}
	return (a - b) / den
}

// ComputeIndices derives all computable vegetation indices from one sample.
// Indices whose required bands are missing are omitted from the result
// rather than failing the whole calculation. Pure: the sample is not
// modified and equal inputs produce equal outputs.
func ComputeIndices(s BandSample) (IndexSet, error) {
	if len(s.Bands) == 0 || !s.Valid {
		return nil, ErrInvalidBandSample
	}

	out := make(IndexSet, len(indexDefs))
	for id, def := range indexDefs {
		if !hasBands(s, def.bands) {
			continue
		}
		raw := def.compute(s.Bands)
		v := IndexValue{Value: raw}
		if raw < def.min {
			v = IndexValue{Value: def.min, LowQuality: true}
		} else if raw > def.max {
			v = IndexValue{Value: def.max, LowQuality: true}
		}
		out[id] = v
	}
	return out, nil
}

// IndexRange returns the documented valid range for an index.
func IndexRange(id IndexID) (min, max float64, ok bool) {
	def, ok := indexDefs[id]
	if !ok {
		return 0, 0, false
	}
	return def.min, def.max, true
}

// KnownIndices lists every index this calculator can produce.
func KnownIndices() []IndexID {
	out := make([]IndexID, 0, len(indexDefs))
	for id := range indexDefs {
		out = append(out, id)
	}
	return out
}

func hasBands(s BandSample, bands []Band) bool {
	for _, b := range bands {
		if _, ok := s.Bands[b]; !ok {
			return false
		}
	}
	return true
}
