// Command genfixtures generates synthetic field-observation fixtures for
// the analytics test suites and for local topic seeding. It derives band
// reflectance from target index values with the actual domain formulas, so
// replaying a fixture through the pipeline reproduces the intended index
// series exactly.
//
// Usage:
//
//	go run ./cmd/genfixtures -out data/fixtures
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cropsight/veg-analytics-service/internal/domain"
)

var seasonStart = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for fixture JSON files")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	fixtures := map[string][]domain.FieldMessage{
		"observations_growth.json":  growthSeason("t1", "field-growth"),
		"observations_harvest.json": harvestSeason("t1", "field-harvest"),
		"observations_flood.json":   floodSeason("t1", "field-flood"),
		"zoning_grid.json":          zoningMessages("t1", "field-zoned"),
	}

	for name, msgs := range fixtures {
		path := filepath.Join(*out, name)
		if err := writeJSON(path, msgs); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("wrote %s: %d messages", path, len(msgs))
	}
	return nil
}

// ndviCurve evaluates a logistic growth curve peaking near 0.82.
func ndviCurve(day int) float64 {
	return 0.15 + 0.67/(1+math.Exp(-0.12*(float64(day)-35)))
}

// bandsFor derives red/nir (and optionally green for NDWI) so the domain
// index formulas reproduce the targets exactly.
func bandsFor(ndvi float64, ndwi *float64) map[string]float64 {
	red := 0.08
	nir := red * (1 + ndvi) / (1 - ndvi)
	bands := map[string]float64{"red": red, "nir": nir}
	if ndwi != nil {
		bands["green"] = nir * (1 + *ndwi) / (1 - *ndwi)
	}
	return bands
}

// seasonMessages builds one observation message per capture, each carrying
// the history snapshot of everything before it, the way the intake service
// does.
func seasonMessages(tenant, field string, ndvi []float64, ndwi []float64) []domain.FieldMessage {
	msgs := make([]domain.FieldMessage, 0, len(ndvi))
	var history []domain.HistoryPoint

	for i, v := range ndvi {
		date := seasonStart.AddDate(0, 0, i*5) // 5-day revisit cadence
		var w *float64
		if ndwi != nil {
			w = &ndwi[i]
		}
		msgs = append(msgs, domain.FieldMessage{
			Kind:     domain.KindObservation,
			TenantID: tenant,
			FieldID:  field,
			Date:     date.Format("2006-01-02"),
			Bands:    bandsFor(v, w),
			History:  append([]domain.HistoryPoint(nil), history...),
		})

		indices := map[string]float64{"ndvi": v}
		if w != nil {
			indices["ndwi"] = *w
		}
		history = append(history, domain.HistoryPoint{
			Date:    date.Format("2006-01-02"),
			Indices: indices,
		})
	}
	return msgs
}

func growthSeason(tenant, field string) []domain.FieldMessage {
	ndvi := make([]float64, 20)
	for i := range ndvi {
		ndvi[i] = ndviCurve(i * 5)
	}
	return seasonMessages(tenant, field, ndvi, nil)
}

func harvestSeason(tenant, field string) []domain.FieldMessage {
	ndvi := make([]float64, 0, 18)
	for i := 0; i < 16; i++ {
		ndvi = append(ndvi, ndviCurve(i*5))
	}
	// Terminal cut: the crop comes off between two revisits.
	ndvi = append(ndvi, 0.22, 0.18)
	return seasonMessages(tenant, field, ndvi, nil)
}

func floodSeason(tenant, field string) []domain.FieldMessage {
	n := 10
	ndvi := make([]float64, n)
	ndwi := make([]float64, n)
	for i := 0; i < n-1; i++ {
		ndvi[i] = 0.65 + 0.03*math.Sin(float64(i))
		ndwi[i] = 0.05
	}
	// Final capture: standing water drowns the signal.
	ndvi[n-1] = 0.30
	ndwi[n-1] = 0.30
	return seasonMessages(tenant, field, ndvi, ndwi)
}

// zoningMessages builds one zoning request over a 10x10 grid with a west-east
// productivity gradient, for each prescription input type the service ships
// default policies for.
func zoningMessages(tenant, field string) []domain.FieldMessage {
	var samples []domain.ZoningSample
	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			ndwi := 0.02 + 0.01*float64(row)
			samples = append(samples, domain.ZoningSample{
				Lat:   41.30 + float64(row)*0.0005,
				Lon:   -95.60 + float64(col)*0.0005,
				Value: 0.35 + 0.04*float64(col),
				NDWI:  &ndwi,
			})
		}
	}

	date := seasonStart.AddDate(0, 0, 60).Format("2006-01-02")
	inputs := []domain.InputType{domain.InputFertilizer, domain.InputSeed, domain.InputIrrigation}
	msgs := make([]domain.FieldMessage, len(inputs))
	for i, input := range inputs {
		msgs[i] = domain.FieldMessage{
			Kind:      domain.KindZoning,
			TenantID:  tenant,
			FieldID:   field,
			Date:      date,
			InputType: string(input),
			Samples:   samples,
		}
	}
	return msgs
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
