package calculator

// MACD holds the three aligned MACD series.
type MACD struct {
	DIF    []Value `json:"dif"`
	Signal []Value `json:"signal"`
	Hist   []Value `json:"hist"`
}

// ComputeMACD returns dif = EMA(fast) - EMA(slow), the signal EMA of dif
// (unavailable dif counted as zero) and hist = dif - signal.
func ComputeMACD(values []float64, fast, slow, signal int) MACD {
	n := len(values)
	ef, es := EMA(values, fast), EMA(values, slow)

	dif := unavailable(n)
	filled := make([]float64, n)
	for i := 0; i < n; i++ {
		if ef[i].Valid && es[i].Valid {
			dif[i] = Some(ef[i].Float - es[i].Float)
			filled[i] = dif[i].Float
		}
	}

	sig := EMA(filled, signal)
	hist := unavailable(n)
	for i := 0; i < n; i++ {
		if dif[i].Valid && sig[i].Valid {
			hist[i] = Some(dif[i].Float - sig[i].Float)
		}
	}
	return MACD{DIF: dif, Signal: sig, Hist: hist}
}
