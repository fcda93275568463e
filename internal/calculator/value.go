package calculator

import (
	"encoding/json"
	"math"
)

// Value is one position of an indicator series. Valid is false during
// warm-up; such positions encode as JSON null.
type Value struct {
	Float float64
	Valid bool
}

// Some wraps an available value.
func Some(v float64) Value { return Value{Float: v, Valid: true} }

// None is the unavailable marker.
var None = Value{}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid || math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = None
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

func unavailable(n int) []Value {
	return make([]Value, n)
}
