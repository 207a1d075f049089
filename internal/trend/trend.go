// Package trend implements the monotonic-trend statistics attached to every
// feature: the Mann-Kendall test (Kendall's S with tie-corrected variance,
// tau, two-sided p-value) and the Theil-Sen slope estimator. Input series
// are evenly spaced months, so both statistics are computed over
// (sequence-position, value) pairs.
package trend

import (
	"math"
	"sort"
)

// DefaultAlpha is the significance level used for the 3-way classification.
const DefaultAlpha = 0.05

// Result holds full-history trend statistics for one (feature, index) pair.
// It is computed once over the entire non-null series and must not change
// with UI date selections.
type Result struct {
	Tau           float64 `json:"tau"`
	PValue        float64 `json:"p_value"`
	SenSlope      float64 `json:"sen_slope"`
	Trend         string  `json:"trend"`
	Category      string  `json:"trend_category"`
	LabelEN       string  `json:"trend_label_en"`
	LabelFA       string  `json:"trend_label_fa"`
	Symbol        string  `json:"trend_symbol"`
}

// Compute runs the Mann-Kendall test and Sen slope over a chronologically
// ordered series (nulls already excluded). Fewer than 2 values is not
// testable and yields tau=0, p=1, slope=0, "no trend".
func Compute(values []float64) Result {
	n := len(values)
	if n < 2 {
		r := Result{Tau: 0, PValue: 1, SenSlope: 0, Trend: "no trend"}
		r.applyClassification()
		return r
	}

	var s float64
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case values[j] > values[i]:
				s++
			case values[j] < values[i]:
				s--
			}
		}
	}

	varS := varianceS(values)

	var z float64
	if varS > 0 {
		if s > 0 {
			z = (s - 1) / math.Sqrt(varS)
		} else if s < 0 {
			z = (s + 1) / math.Sqrt(varS)
		}
	}

	p := 2 * (1 - normCDF(math.Abs(z)))
	tau := s / (0.5 * float64(n) * float64(n-1))

	var trendWord string
	switch {
	case p <= DefaultAlpha && z > 0:
		trendWord = "increasing"
	case p <= DefaultAlpha && z < 0:
		trendWord = "decreasing"
	default:
		trendWord = "no trend"
	}

	r := Result{
		Tau:      tau,
		PValue:   p,
		SenSlope: senSlope(values),
		Trend:    trendWord,
	}
	r.applyClassification()
	return r
}

// varianceS is the variance of Kendall's S with the standard tie correction:
// (n(n-1)(2n+5) - sum over tie groups t(t-1)(2t+5)) / 18.
func varianceS(values []float64) float64 {
	n := float64(len(values))
	v := n * (n - 1) * (2*n + 5)
	counts := make(map[float64]float64, len(values))
	for _, x := range values {
		counts[x]++
	}
	for _, t := range counts {
		if t > 1 {
			v -= t * (t - 1) * (2*t + 5)
		}
	}
	return v / 18
}

// senSlope is the median of all pairwise slopes (x[j]-x[i])/(j-i).
func senSlope(values []float64) float64 {
	n := len(values)
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			slopes = append(slopes, (values[j]-values[i])/float64(j-i))
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	mid := len(slopes) / 2
	if len(slopes)%2 == 1 {
		return slopes[mid]
	}
	return (slopes[mid-1] + slopes[mid]) / 2
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
