// Package attitude holds gain formulas for the Madgwick orientation filter.
package attitude

import "math"

// MadgwickBeta returns the gradient descent gain β = sqrt(3/4)·ω where ω
// is the gyroscope measurement error in radians per second.
func MadgwickBeta(gyroError float64) float64 {
	return math.Sqrt(3.0/4) * gyroError
}

// MadgwickZeta returns the gyroscope bias drift gain ζ = sqrt(3/4)·ω where
// ω is the gyroscope drift rate in radians per second squared.
func MadgwickZeta(gyroDrift float64) float64 {
	return math.Sqrt(3.0/4) * gyroDrift
}
