// Package stats holds the numeric helpers used by the drift analysis.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// Mean returns the arithmetic mean of values
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: mean of empty sample", types.ErrStatisticsDomain)
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// StandardDeviation returns the population or, when sample is true, the
// Bessel-corrected standard deviation of values rounded to 2 decimal places.
func StandardDeviation(values []float64, sample bool) (float64, error) {
	n := len(values)
	if sample {
		n--
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: standard deviation of %d values (sample=%t)", types.ErrStatisticsDomain, len(values), sample)
	}

	mean, err := Mean(values)
	if err != nil {
		return 0, err
	}

	// Sum of squares
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return RoundTo(math.Sqrt(sumSquaredDiff/float64(n)), 2), nil
}

// PoissonProbability returns 1 / (lambda * e^(interval*lambda)).
//
// lambda is the block rate per hour and interval the (negated) drift
// window in hours.
func PoissonProbability(lambda, interval float64) float64 {
	return 1 / (lambda * math.Exp(interval*lambda))
}

// RoundTo rounds value half away from zero to precision decimal places
func RoundTo(value float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(value*scale) / scale
}

// Summarize computes the distribution of values. Values are not modified.
func Summarize(values []float64) types.Distribution {
	if len(values) == 0 {
		return types.Distribution{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return types.Distribution{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: Percentile(sorted, 0.5),
		P25:    Percentile(sorted, 0.25),
		P75:    Percentile(sorted, 0.75),
		P95:    Percentile(sorted, 0.95),
		P99:    Percentile(sorted, 0.99),
	}
}

// Percentile calculates the percentile value of an already sorted slice
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
