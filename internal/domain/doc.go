// Package domain implements the vegetation time-series analytics core:
// index computation, series smoothing, baseline statistics, anomaly and
// change detection, trend characterization, phenological staging, and
// zone-based prescription generation.
//
// # Inputs
//
// The core consumes already-corrected data produced upstream: per-band
// surface reflectance in [0,1] with a cloud-coverage percentage, and the
// field's index history as an immutable snapshot travelling with each
// message. Imagery acquisition, atmospheric correction, cloud masking, and
// reprojection all happen before data reaches this package.
//
// # Index formulas
//
//	ndvi  = (nir - red) / (nir + red)
//	ndwi  = (green - nir) / (green + nir)
//	evi   = 2.5 (nir - red) / (nir + 6 red - 7.5 blue + 1)
//	savi  = 1.5 (nir - red) / (nir + red + 0.5)
//	gndvi = (nir - green) / (nir + green)
//	ndre  = (nir - red_edge) / (nir + red_edge)
//	lci   = (nir - red_edge) / (nir + red)
//
// A zero denominator yields 0. Values are clamped to the index's valid
// range; a value that needed clamping is flagged low quality. An index
// whose bands are missing is omitted from the IndexSet rather than failing
// the calculation.
//
// # Determinism and purity
//
// Every function here is a deterministic, side-effect-free computation over
// its explicit inputs. History snapshots are caller-owned and never
// mutated, so evaluation across fields is freely parallel and repeated
// calls with the same snapshot can be cached by the caller. The only
// ambient state is the package clock stamping DetectedAt / GeneratedAt,
// swappable via [SetClock] for reproducible fixtures and tests.
//
// # Failure direction
//
// Detection components fail toward silence: short history, a flat
// baseline, or a missing index produces no event, not an error. Hard
// errors are reserved for structurally invalid input — an empty band set,
// an out-of-order history snapshot, or a rate-policy table without the
// requested input type. See the Err sentinels in errors.go.
//
// # Event identity
//
// Anomaly and change event IDs are deterministic SHA-256 hashes of the
// event's key fields, so replaying a message produces the same IDs and
// downstream consumers can upsert idempotently.
package domain
