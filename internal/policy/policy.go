// Package policy loads rate-policy tables from YAML and exports
// prescription maps as agronomy-tool-friendly CSV.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/cropsight/veg-analytics-service/internal/domain"
)

// filePolicy is the YAML shape of one input's rate policy.
type filePolicy struct {
	MinRate   float64 `yaml:"min_rate"`
	MaxRate   float64 `yaml:"max_rate"`
	Unit      string  `yaml:"unit"`
	Direction string  `yaml:"direction"`
	RoundTo   float64 `yaml:"round_to"`
}

type policyFile struct {
	Policies map[string]filePolicy `yaml:"policies"`
}

// Load reads a rate-policy table from a YAML file and validates it.
func Load(path string) (domain.RatePolicyTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rate policies: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a rate-policy table from YAML bytes.
func Parse(raw []byte) (domain.RatePolicyTable, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing rate policies: %w", err)
	}
	if len(file.Policies) == 0 {
		return nil, fmt.Errorf("rate policy file defines no policies")
	}

	table := make(domain.RatePolicyTable, len(file.Policies))
	for name, p := range file.Policies {
		input := domain.InputType(strings.ToLower(strings.TrimSpace(name)))
		table[input] = domain.RatePolicy{
			MinRate:   p.MinRate,
			MaxRate:   p.MaxRate,
			Unit:      p.Unit,
			Direction: domain.RateDirection(p.Direction),
			RoundTo:   p.RoundTo,
		}
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate policies: %w", err)
	}
	return table, nil
}

// Default returns the built-in table used when no policy file is
// configured. Bounds are deliberately conservative defaults; operators are
// expected to ship their own file for production use.
func Default() domain.RatePolicyTable {
	return domain.RatePolicyTable{
		domain.InputFertilizer: {MinRate: 80, MaxRate: 220, Unit: "kg/ha", Direction: domain.DirectionInverse, RoundTo: 5},
		domain.InputSeed:       {MinRate: 55000, MaxRate: 90000, Unit: "seeds/ha", Direction: domain.DirectionDirect, RoundTo: 500},
		domain.InputIrrigation: {MinRate: 5, MaxRate: 25, Unit: "mm", Direction: domain.DirectionNDWIInverse, RoundTo: 1},
	}
}

// ExportCSV renders a prescription map as CSV with one row per zone,
// ordered as the map's rates are (rank ascending).
func ExportCSV(p domain.PrescriptionMap) ([]byte, error) {
	out, err := gocsv.MarshalBytes(&p.Rates)
	if err != nil {
		return nil, fmt.Errorf("rendering prescription csv: %w", err)
	}
	return out, nil
}
