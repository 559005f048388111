package formulas

// MaxDrawdown calculates the maximum peak-to-trough decline of a value series.
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Returns a fraction in [0, 1] (0.25 = 25% loss from peak). A non-positive
// peak contributes no drawdown.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	// Negative values below a positive peak would push past 100%
	if maxDrawdown > 1 {
		maxDrawdown = 1
	}

	return maxDrawdown
}
