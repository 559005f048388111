// Package formulas provides numerically guarded statistical helpers.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// MeanSquare returns E[x²]
func MeanSquare(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v * v
	}
	return sum / float64(len(data))
}

// Variance calculates the sample (n-1) variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample (n-1) covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// LogReturns converts a value series to log returns.
// Returns[i] = ln(v[i+1] / v[i]); a zero previous value yields 0 instead of -Inf/NaN.
func LogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if prev == 0 {
			continue
		}
		r := math.Log(cur / prev)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns[i-1] = r
	}

	return returns
}

// PopulationStdDev computes sqrt(max(E[x²] - E[x]², 0)).
// Floating point can leave the variance slightly negative, hence the clamp.
func PopulationStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	variance := MeanSquare(data) - mean*mean
	return math.Sqrt(math.Max(variance, 0))
}
