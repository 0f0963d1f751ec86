// Command validate checks the service's operational inputs without Kafka:
// it validates a rate-policy YAML file and replays fixture messages through
// the full evaluation path with a fixed clock, verifying that every message
// evaluates cleanly and that the expected event types come out.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -policies config/policies.yaml \
//	  -fixtures data/fixtures
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/observability"
	"github.com/cropsight/veg-analytics-service/internal/pipeline"
	"github.com/cropsight/veg-analytics-service/internal/policy"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	policiesPath := flag.String("policies", "", "path to rate-policy YAML (empty validates built-in defaults)")
	fixturesDir := flag.String("fixtures", "", "directory of fixture JSON files to replay (optional)")
	flag.Parse()

	if code := run(*policiesPath, *fixturesDir); code != 0 {
		os.Exit(code)
	}
}

func run(policiesPath, fixturesDir string) int {
	// Fixed clock so replayed event IDs and timestamps are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.September, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Vegetation Analytics Validation ===")
	fmt.Println()

	table, policyPhase := validatePolicies(policiesPath)
	phases := []*phase{policyPhase}

	if fixturesDir != "" && policyPhase.passed() {
		phases = append(phases, replayFixtures(fixturesDir, table))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validatePolicies(path string) (domain.RatePolicyTable, *phase) {
	p := &phase{name: "rate policy validation"}

	if path == "" {
		fmt.Println("validating built-in default policies")
		return policy.Default(), p
	}

	table, err := policy.Load(path)
	if err != nil {
		p.errorf("%v", err)
		return nil, p
	}
	fmt.Printf("loaded %d policies from %s\n", len(table), path)
	return table, p
}

func replayFixtures(dir string, table domain.RatePolicyTable) *phase {
	p := &phase{name: "fixture replay"}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil || len(paths) == 0 {
		p.errorf("no fixture files in %s", dir)
		return p
	}

	evaluator := pipeline.NewEvaluator(replayConfig(), table, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting())

	for _, path := range paths {
		msgs, err := loadMessages(path)
		if err != nil {
			p.errorf("%s: %v", filepath.Base(path), err)
			continue
		}

		counts := map[string]int{}
		for i, msg := range msgs {
			raw, err := rawFromMessage(msg)
			if err != nil {
				p.errorf("%s[%d]: %v", filepath.Base(path), i, err)
				continue
			}
			events, err := evaluator.Evaluate(context.Background(), raw)
			if err != nil {
				p.errorf("%s[%d] (%s): %v", filepath.Base(path), i, msg.Date, err)
				continue
			}
			for _, e := range events {
				counts[e.Headers["event_type"]]++
			}
		}

		fmt.Printf("%s: %d messages -> %v\n", filepath.Base(path), len(msgs), counts)
		checkExpectations(p, filepath.Base(path), msgs, counts)
	}
	return p
}

// checkExpectations applies per-fixture sanity rules: every observation
// yields an index event, zoning fixtures yield prescriptions.
func checkExpectations(p *phase, name string, msgs []domain.FieldMessage, counts map[string]int) {
	observations, zonings := 0, 0
	for _, m := range msgs {
		switch m.Kind {
		case domain.KindObservation:
			observations++
		case domain.KindZoning:
			zonings++
		}
	}

	if counts[pipeline.EventTypeIndex] != observations {
		p.errorf("%s: %d observations but %d index events", name, observations, counts[pipeline.EventTypeIndex])
	}
	if counts[pipeline.EventTypePrescription] != zonings {
		p.errorf("%s: %d zoning requests but %d prescription events", name, zonings, counts[pipeline.EventTypePrescription])
	}
}

func replayConfig() pipeline.EvaluatorConfig {
	return pipeline.EvaluatorConfig{
		Smoother:  domain.SmootherConfig{Window: 5, Degree: 2, MaxCloudCoverPct: 40},
		Baseline:  domain.BaselineConfig{Window: 10},
		Detector:  domain.DetectorConfig{ZScoreThreshold: 2.0, HighSeverityZ: 3.0, SuddenDropDelta: 0.25, MinHistory: 3},
		Trend:     domain.TrendConfig{StableSlope: 0.005, BreakpointDelta: 0.01, BreakpointWindow: 3},
		Phenology: domain.PhenologyConfig{MinPoints: 4, PeakProximity: 0.9, LowFraction: 0.25, HarvestDropDelta: 0.25},
		Change:    domain.ChangeConfig{SharpNDVIDrop: 0.25, NDWIRise: 0.15, FloodNDVIDrop: 0.25, BareSoilNDVI: 0.2, PlantingRise: 0.15},
		Zone:      domain.ZoneConfig{ZoneCount: 5, MinSamples: 10},
	}
}

func loadMessages(path string) ([]domain.FieldMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msgs []domain.FieldMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return msgs, nil
}

func rawFromMessage(msg domain.FieldMessage) (domain.RawEvent, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return domain.RawEvent{}, err
	}
	return domain.RawEvent{
		Key:   []byte(msg.Subject()),
		Value: value,
		Topic: "field-observations",
	}, nil
}
