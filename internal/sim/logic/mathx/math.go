package mathx

import "math"

// SaturateU8 pins v into [0,255] and truncates toward zero.
// NaN maps to 0; callers are expected to reject non-finite input earlier.
func SaturateU8(v float64) uint8 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= 0:
		return 0
	case v >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(v)
}

// PosPart returns max(0, v).
func PosPart(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
