package domain

import "fmt"

// SmootherConfig controls cleaning and denoising of a raw index series.
type SmootherConfig struct {
	// Window is the moving-window size for the local polynomial fit.
	// Must be odd and at least 3.
	Window int
	// Degree is the polynomial degree of the fit. Must be below Window.
	Degree int
	// MaxCloudCoverPct rejects observations above this cloud coverage.
	MaxCloudCoverPct float64
}

// SmoothSeries cleans and denoises one index's chronological series.
//
// Observations that are invalid, cloudier than the configured cutoff, or
// missing the requested index are rejected. Rejected dates interior to the
// series are filled by linear interpolation between the nearest valid
// neighbors and marked as interpolated; leading and trailing rejects are
// dropped outright — values are never extrapolated beyond the first and
// last valid points. The surviving series is then smoothed with a
// Savitzky-Golay-style moving-window least-squares polynomial fit.
//
// Returns ErrInsufficientData when fewer valid points exist than the
// window size. The input slice is never modified.
func SmoothSeries(points []TimeSeriesPoint, index IndexID, cfg SmootherConfig) (SmoothedSeries, error) {
	if cfg.Window < 3 || cfg.Window%2 == 0 {
		return SmoothedSeries{}, fmt.Errorf("smoother window must be odd and >= 3, got %d", cfg.Window)
	}
	if cfg.Degree < 1 || cfg.Degree >= cfg.Window {
		return SmoothedSeries{}, fmt.Errorf("smoother degree must be in [1,%d), got %d", cfg.Window, cfg.Degree)
	}
	if err := ValidateHistory(points); err != nil {
		return SmoothedSeries{}, err
	}

	type workPoint struct {
		p     SmoothedPoint
		valid bool
	}
	work := make([]workPoint, 0, len(points))
	valid := 0
	for _, p := range points {
		v, ok := p.Indices.Value(index)
		usable := ok && p.Valid && p.CloudCoverPct <= cfg.MaxCloudCoverPct
		if usable {
			valid++
		}
		work = append(work, workPoint{
			p:     SmoothedPoint{Date: p.Date, Value: v},
			valid: usable,
		})
	}

	if valid < cfg.Window {
		return SmoothedSeries{}, fmt.Errorf("%d valid points, smoother needs %d: %w",
			valid, cfg.Window, ErrInsufficientData)
	}

	// Trim leading and trailing rejects: no extrapolation.
	lo, hi := 0, len(work)-1
	for !work[lo].valid {
		lo++
	}
	for !work[hi].valid {
		hi--
	}
	work = work[lo : hi+1]

	// Fill interior gaps by linear interpolation in date space.
	out := make([]SmoothedPoint, len(work))
	prevValid := 0
	for i := range work {
		if work[i].valid {
			out[i] = work[i].p
			prevValid = i
			continue
		}
		next := i + 1
		for !work[next].valid {
			next++
		}
		a, b := work[prevValid].p, work[next].p
		span := b.Date.Sub(a.Date).Hours()
		frac := 0.0
		if span > 0 {
			frac = work[i].p.Date.Sub(a.Date).Hours() / span
		}
		out[i] = SmoothedPoint{
			Date:         work[i].p.Date,
			Value:        a.Value + frac*(b.Value-a.Value),
			Interpolated: true,
		}
	}

	// Local least-squares polynomial fit evaluated at each point. Windows
	// shrink at the series edges; the fit degree shrinks with them.
	values := make([]float64, len(out))
	for i := range out {
		values[i] = out[i].Value
	}
	half := cfg.Window / 2
	smoothed := make([]SmoothedPoint, len(out))
	for i := range out {
		wlo := max(0, i-half)
		whi := min(len(out)-1, i+half)
		smoothed[i] = out[i]
		smoothed[i].Value = polyFitAt(values[wlo:whi+1], i-wlo, cfg.Degree)
	}

	return SmoothedSeries{Index: index, Points: smoothed}, nil
}

// polyFitAt fits a polynomial of the given degree to window by least
// squares, with x taken as position offsets from center, and returns the
// fitted value at center. Degree is capped so the system stays determined.
func polyFitAt(window []float64, center, degree int) float64 {
	n := len(window)
	if degree > n-1 {
		degree = n - 1
	}
	terms := degree + 1

	// Normal equations: A[p][q] = sum x^(p+q), rhs[p] = sum y*x^p.
	a := make([][]float64, terms)
	rhs := make([]float64, terms)
	for p := 0; p < terms; p++ {
		a[p] = make([]float64, terms)
	}
	for j, y := range window {
		x := float64(j - center)
		xp := 1.0
		pow := make([]float64, 2*terms-1)
		for p := 0; p < 2*terms-1; p++ {
			pow[p] = xp
			xp *= x
		}
		for p := 0; p < terms; p++ {
			rhs[p] += y * pow[p]
			for q := 0; q < terms; q++ {
				a[p][q] += pow[p+q]
			}
		}
	}

	coef, ok := solveLinear(a, rhs)
	if !ok {
		return window[center]
	}
	// Evaluated at x=0 only the constant term survives.
	return coef[0]
}

// solveLinear solves a*x = b by Gaussian elimination with partial pivoting.
func solveLinear(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
