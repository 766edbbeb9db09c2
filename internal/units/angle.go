package units

import "math"

// NormalizeAngle maps an angle in radians to the canonical range [-π, π).
// Non-finite input is returned unchanged.
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	if a >= -math.Pi && a < math.Pi {
		return a
	}
	r := a - 2*math.Pi*math.Floor((a+math.Pi)/(2*math.Pi))
	// Floor rounding can land exactly on the open end.
	if r >= math.Pi {
		r -= 2 * math.Pi
	}
	return r
}

// AngleDifference returns the shortest signed angular distance a-b in [-π, π).
func AngleDifference(a, b float64) float64 {
	return NormalizeAngle(a - b)
}

// RadiansToDegrees converts radians to degrees.
func RadiansToDegrees(r float64) float64 {
	return r * (180 / math.Pi)
}

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(d float64) float64 {
	return d * (math.Pi / 180)
}
