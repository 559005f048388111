// Package risk computes portfolio risk analytics from the hourly NAV series.
package risk

import (
	"math"

	"github.com/aristath/papertrader/pkg/formulas"
)

// HoursPerYear annualizes hourly returns: 252 sessions of 6.5 trading hours
const HoursPerYear = 252 * 6.5

// Metrics holds the annualized risk statistics of a NAV series
type Metrics struct {
	Volatility   float64 `json:"volatility"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"` // percent, 0-100
	Beta         float64 `json:"beta"`
	AnnualReturn float64 `json:"annual_return"`
	Observations int     `json:"observations"`
}

// ComputeRiskMetrics derives annualized metrics from an ordered value series.
// benchmark must hold the benchmark price at the same instants as values (see AlignBenchmark);
// it may be empty, in which case beta is 0. Fewer than two values yield zeros.
func ComputeRiskMetrics(values, benchmark []float64, riskFreeRate float64) Metrics {
	if len(values) < 2 {
		return Metrics{Observations: len(values)}
	}

	returns := formulas.LogReturns(values)
	annualReturn := formulas.AnnualizedReturn(returns, HoursPerYear)
	volatility := formulas.AnnualizedVolatility(returns, HoursPerYear)
	downside := formulas.DownsideDeviation(returns, HoursPerYear)

	m := Metrics{
		Volatility:   finite(volatility),
		SharpeRatio:  formulas.SharpeRatio(annualReturn, riskFreeRate, volatility),
		SortinoRatio: formulas.SortinoRatio(annualReturn, riskFreeRate, downside),
		MaxDrawdown:  finite(formulas.MaxDrawdown(values) * 100),
		AnnualReturn: finite(annualReturn),
		Observations: len(values),
	}

	if len(benchmark) >= 2 {
		m.Beta = formulas.Beta(returns, formulas.LogReturns(benchmark))
	}

	return m
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
