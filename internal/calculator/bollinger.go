package calculator

import "math"

// Bollinger holds the mid, upper and lower bands.
type Bollinger struct {
	Mid   []Value `json:"mid"`
	Upper []Value `json:"upper"`
	Lower []Value `json:"lower"`
}

// ComputeBollinger uses mid = SMA(window) and a population standard
// deviation over the same trailing window.
func ComputeBollinger(values []float64, window int, k float64) Bollinger {
	n := len(values)
	mid := SMA(values, window)
	upper, lower := unavailable(n), unavailable(n)
	for i := 0; i < n; i++ {
		if !mid[i].Valid {
			continue
		}
		m := mid[i].Float
		var ss float64
		for _, v := range values[i-window+1 : i+1] {
			ss += (v - m) * (v - m)
		}
		sd := math.Sqrt(ss / float64(window))
		upper[i] = Some(m + k*sd)
		lower[i] = Some(m - k*sd)
	}
	return Bollinger{Mid: mid, Upper: upper, Lower: lower}
}
