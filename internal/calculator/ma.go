package calculator

// SMA computes a simple moving average with a running sum over the last
// window values. The first window-1 positions are unavailable.
func SMA(values []float64, window int) []Value {
	out := unavailable(len(values))
	if window < 1 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = Some(sum / float64(window))
		}
	}
	return out
}

// EMA computes an exponential moving average with k = 2/(span+1), seeded by
// the first value. Every position is available.
func EMA(values []float64, span int) []Value {
	out := unavailable(len(values))
	if span < 1 || len(values) == 0 {
		return out
	}
	k := 2.0 / (float64(span) + 1.0)
	prev := values[0]
	out[0] = Some(prev)
	for i := 1; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = Some(prev)
	}
	return out
}
