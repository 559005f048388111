package formulas

import "math"

// AnnualizedReturn scales the mean per-period return by the number of periods per year
func AnnualizedReturn(returns []float64, periodsPerYear float64) float64 {
	return Mean(returns) * periodsPerYear
}

// AnnualizedVolatility scales the per-period standard deviation by sqrt(periodsPerYear)
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	return PopulationStdDev(returns) * math.Sqrt(periodsPerYear)
}

// DownsideDeviation is the root mean square of the negative returns only,
// annualized by sqrt(periodsPerYear). Returns 0 when no step is negative.
func DownsideDeviation(returns []float64, periodsPerYear float64) float64 {
	negative := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return 0
	}
	return math.Sqrt(MeanSquare(negative)) * math.Sqrt(periodsPerYear)
}

// SharpeRatio returns (annualReturn - riskFreeRate) / volatility, or 0 when volatility is 0
func SharpeRatio(annualReturn, riskFreeRate, volatility float64) float64 {
	return excessOver(annualReturn, riskFreeRate, volatility)
}

// SortinoRatio returns (annualReturn - riskFreeRate) / downsideDeviation, or 0 when the deviation is 0
func SortinoRatio(annualReturn, riskFreeRate, downsideDeviation float64) float64 {
	return excessOver(annualReturn, riskFreeRate, downsideDeviation)
}

func excessOver(annualReturn, riskFreeRate, denominator float64) float64 {
	if denominator == 0 || math.IsNaN(denominator) {
		return 0
	}
	ratio := (annualReturn - riskFreeRate) / denominator
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return ratio
}

// Beta computes Cov(asset, benchmark) / Var(benchmark) using sample statistics.
// Both series are truncated to the shorter length; the result is 0 when fewer
// than two aligned returns exist or the benchmark has no variance.
func Beta(asset, benchmark []float64) float64 {
	n := len(asset)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return 0
	}

	a := asset[:n]
	b := benchmark[:n]

	variance := Variance(b)
	if variance == 0 || math.IsNaN(variance) {
		return 0
	}

	beta := Covariance(a, b) / variance
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}
