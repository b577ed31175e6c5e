// Package stats turns fetched users and trips into the dashboard's derived
// views. Every function here is pure: same inputs, same outputs.
package stats

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number coerces a raw document value to a float. Missing, non-numeric
// (booleans included) and non-finite values count as 0.
func Number(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Round2 rounds to two decimal places for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
