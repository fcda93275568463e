package calculator

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

const eps = 1e-9

func assertSeries(t *testing.T, want []any, got []Value) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		if w == nil {
			assert.False(t, got[i].Valid, "position %d should be unavailable", i)
			continue
		}
		require.True(t, got[i].Valid, "position %d should be available", i)
		assert.InDelta(t, w.(float64), got[i].Float, 1e-3, "position %d", i)
	}
}

func TestSMA(t *testing.T) {
	assertSeries(t, []any{nil, nil, 2.0, 3.0, 4.0}, SMA([]float64{1, 2, 3, 4, 5}, 3))
	assertSeries(t, []any{1.0, 2.0}, SMA([]float64{1, 2}, 1))
	assertSeries(t, []any{nil, nil}, SMA([]float64{1, 2}, 3))
	assertSeries(t, []any{nil, nil}, SMA([]float64{1, 2}, 0))
	assert.Empty(t, SMA(nil, 3))
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3}, 2)
	assertSeries(t, []any{1.0, 1.667, 2.556}, got)
	assert.Equal(t, 1.0, got[0].Float)
	assert.Empty(t, EMA(nil, 5))
}

func TestEMAFirstValueSeeds(t *testing.T) {
	for _, span := range []int{1, 3, 12, 26} {
		got := EMA([]float64{42, 1, 7}, span)
		assert.Equal(t, 42.0, got[0].Float)
		for _, v := range got {
			assert.True(t, v.Valid)
		}
	}
}

func TestMACD(t *testing.T) {
	values := []float64{10, 11, 12, 11, 13, 14, 13, 15, 16, 15}
	m := ComputeMACD(values, 3, 6, 2)

	ef, es := EMA(values, 3), EMA(values, 6)
	require.Len(t, m.DIF, len(values))
	difs := make([]float64, len(values))
	for i := range values {
		require.True(t, m.DIF[i].Valid)
		assert.InDelta(t, ef[i].Float-es[i].Float, m.DIF[i].Float, eps)
		difs[i] = m.DIF[i].Float
	}
	sig := EMA(difs, 2)
	for i := range values {
		assert.InDelta(t, sig[i].Float, m.Signal[i].Float, eps)
		assert.InDelta(t, m.DIF[i].Float-m.Signal[i].Float, m.Hist[i].Float, eps)
	}
	// first position: both EMAs equal the first value
	assert.Equal(t, 0.0, m.DIF[0].Float)
	assert.Equal(t, 0.0, m.Hist[0].Float)
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	got := RSI(rising, 14)
	for i := 0; i < 14; i++ {
		assert.False(t, got[i].Valid, "position %d", i)
	}
	for i := 14; i < 20; i++ {
		require.True(t, got[i].Valid)
		assert.Equal(t, 100.0, got[i].Float)
	}
}

func TestRSITrailingWindow(t *testing.T) {
	// changes: +1 -1 +2 +2
	values := []float64{10, 11, 10, 12, 14}
	got := RSI(values, 2)
	assertSeries(t, []any{nil, nil, 50.0, 100 - 100/(1+2.0), 100.0}, got)

	falling := []float64{5, 4, 3, 2}
	assertSeries(t, []any{nil, nil, 0.0, 0.0}, RSI(falling, 2))

	assert.False(t, RSI([]float64{1}, 14)[0].Valid)
}

func TestBollinger(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	b := ComputeBollinger(values, 8, 2)
	for i := 0; i < 7; i++ {
		assert.False(t, b.Upper[i].Valid)
		assert.False(t, b.Lower[i].Valid)
	}
	// population sd of the classic sample is exactly 2
	assert.InDelta(t, 5.0, b.Mid[7].Float, eps)
	assert.InDelta(t, 9.0, b.Upper[7].Float, eps)
	assert.InDelta(t, 1.0, b.Lower[7].Float, eps)
}

func TestBollingerMidEqualsSMA(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9}
	for _, w := range []int{1, 2, 5, 20} {
		b := ComputeBollinger(values, w, 2)
		assert.Equal(t, SMA(values, w), b.Mid)
	}
}

func TestInputNotMutated(t *testing.T) {
	values := []float64{5, 3, 8, 1}
	orig := append([]float64(nil), values...)
	SMA(values, 2)
	EMA(values, 2)
	ComputeMACD(values, 2, 3, 2)
	RSI(values, 2)
	ComputeBollinger(values, 2, 2)
	assert.Equal(t, orig, values)
}

func TestCompute(t *testing.T) {
	start := calendar.Day(2025, time.September, 1)
	points := make([]model.ClosePoint, 30)
	for i := range points {
		points[i] = model.ClosePoint{Date: start.AddDate(0, 0, i), Close: 100 + math.Sin(float64(i))}
	}

	res := Compute(points, DefaultOptions())
	assert.Len(t, res.Dates, 30)
	assert.Equal(t, "2025-09-01", res.Dates[0])
	require.Contains(t, res.MA, "5")
	require.Contains(t, res.MA, "20")
	require.Contains(t, res.MA, "60")
	assert.False(t, res.MA["60"][29].Valid)
	assert.True(t, res.MA["5"][4].Valid)
	require.NotNil(t, res.MACD)
	require.NotNil(t, res.BB)
	assert.Len(t, res.RSI, 30)

	none := Compute(points, Options{})
	assert.Nil(t, none.MA)
	assert.Nil(t, none.MACD)
	assert.Nil(t, none.RSI)
	assert.Nil(t, none.BB)

	b, err := json.Marshal(none)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "macd")
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal([]Value{None, Some(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 1.5]`, string(b))

	var back []Value
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []Value{None, Some(1.5)}, back)
}
