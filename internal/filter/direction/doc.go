// Package direction estimates the offset between a direction sensor and the
// direction of motion of a vehicle moving in a plane.
//
// A Filter is an unscented Kalman filter over one of three state layouts:
//
//	1.0  px, vx, py, vy, angle
//	1.1  px, vx, py, vy, angle, angle rate
//	2.1  px, vx, ax, py, vy, ay, angle, angle rate
//
// where angle is the heading offset. Direction measurements observe
// atan2(vy, vx) + angle. Direction orchestrates a filter over a stream of
// measurement cycles: it resets the filter from the measurement queue after
// gaps, holds the heading with synthetic velocity updates while standing,
// and accumulates NEES and NIS.
package direction
