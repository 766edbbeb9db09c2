// Package report renders the result of a filter run: PNG plots of the track
// and heading offset, and an interactive HTML chart of speed and heading.
package report

import (
	"fmt"
	"math"

	"github.com/banshee-data/heading/internal/db"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/floats"
)

// Sample is one measurement cycle as seen by the reports. Angles are in
// radians and speeds in m/s.
type Sample struct {
	Time       float64
	FromFilter bool
	X, Y       float64
	Speed      float64
	SpeedP     float64
	Angle      float64
	AngleP     float64

	HasTruth  bool
	TrueX     float64
	TrueY     float64
	TrueSpeed float64
	TrueAngle float64
}

// Samples converts stored estimates into report samples.
func Samples(records []db.EstimateRecord) []Sample {
	samples := make([]Sample, 0, len(records))
	for _, r := range records {
		s := Sample{
			Time:       r.Time,
			FromFilter: r.FromFilter,
			X:          r.PositionX,
			Y:          r.PositionY,
			Speed:      r.Speed,
			SpeedP:     r.SpeedP,
			Angle:      r.Angle,
			AngleP:     r.AngleP,
		}
		if r.Truth != nil {
			s.HasTruth = true
			s.TrueX = r.Truth.X
			s.TrueY = r.Truth.Y
			s.TrueSpeed = r.Truth.Speed
			s.TrueAngle = r.Truth.Angle
		}
		samples = append(samples, s)
	}
	return samples
}

// Series holds the per-sample columns derived from a run.
type Series struct {
	Time []float64
	// Speed and SpeedSD are in the requested units.
	Speed     []float64
	SpeedSD   []float64
	TrueSpeed []float64
	// Angle fields are in degrees and only cover filter estimates.
	AngleTime []float64
	Angle     []float64
	AngleSD   []float64
	TrueAngle []float64
}

// NewSeries extracts plot columns from samples.
func NewSeries(samples []Sample, speedUnits string) (Series, error) {
	if !units.IsValid(speedUnits) {
		return Series{}, fmt.Errorf("invalid speed units %q, expected one of: %s", speedUnits, units.GetValidUnitsString())
	}
	var s Series
	for _, sample := range samples {
		s.Time = append(s.Time, sample.Time)
		s.Speed = append(s.Speed, units.ConvertSpeed(sample.Speed, speedUnits))
		s.SpeedSD = append(s.SpeedSD, math.Sqrt(units.ConvertSpeedVariance(sample.SpeedP, speedUnits)))
		if sample.HasTruth {
			s.TrueSpeed = append(s.TrueSpeed, units.ConvertSpeed(sample.TrueSpeed, speedUnits))
		}
		if !sample.FromFilter {
			continue
		}
		s.AngleTime = append(s.AngleTime, sample.Time)
		s.Angle = append(s.Angle, units.RadiansToDegrees(sample.Angle))
		s.AngleSD = append(s.AngleSD, units.RadiansToDegrees(math.Sqrt(sample.AngleP)))
		if sample.HasTruth {
			s.TrueAngle = append(s.TrueAngle, units.RadiansToDegrees(sample.TrueAngle))
		}
	}
	return s, nil
}

// AngleRange returns a padded [min, max] covering the heading estimate, its
// two sigma band and the true heading.
func (s Series) AngleRange() (lo, hi float64) {
	if len(s.Angle) == 0 {
		return -180, 180
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for i, a := range s.Angle {
		lo = math.Min(lo, a-2*s.AngleSD[i])
		hi = math.Max(hi, a+2*s.AngleSD[i])
	}
	if len(s.TrueAngle) > 0 {
		lo = math.Min(lo, floats.Min(s.TrueAngle))
		hi = math.Max(hi, floats.Max(s.TrueAngle))
	}
	lo = math.Max(-180, math.Floor(lo/5)*5-5)
	hi = math.Min(180, math.Ceil(hi/5)*5+5)
	return lo, hi
}
