package calculator

// RSI computes the relative strength index from the mean gain and loss of
// the trailing period price changes. Position 0 and every position before
// period changes exist are unavailable. A window without losses yields 100.
func RSI(values []float64, period int) []Value {
	n := len(values)
	out := unavailable(n)
	if period < 1 || n < 2 {
		return out
	}
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
		if i < period {
			continue
		}
		// Re-summed per window so a loss leaving the window gives an exact zero.
		var g, l float64
		for j := i - period + 1; j <= i; j++ {
			g += gains[j]
			l += losses[j]
		}
		avgGain, avgLoss := g/float64(period), l/float64(period)
		if avgLoss == 0 {
			out[i] = Some(100)
			continue
		}
		rs := avgGain / avgLoss
		out[i] = Some(100 - 100/(1+rs))
	}
	return out
}
