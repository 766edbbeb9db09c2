package direction

import (
	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/filter/noise"
	"gonum.org/v1/gonum/spatial/r2"
)

// Step describes one prediction and the gate of the update that follows.
type Step struct {
	DT                float64
	PositionNoise     noise.Model
	AngleNoise        noise.Model
	FadingMemoryAlpha float64
	Gate              *float64
}

func (s Step) predict(f Filter) {
	f.Predict(s.DT, s.PositionNoise, s.AngleNoise, s.FadingMemoryAlpha)
}

// presence records which optional measurements accompany an update.
type presence uint8

const (
	withSpeed presence = 1 << iota
	withDirection
)

func presenceOf(direction, speed *measurement.Measurement[float64]) presence {
	var p presence
	if speed != nil {
		p |= withSpeed
	}
	if direction != nil {
		p |= withDirection
	}
	return p
}

// UpdatePosition predicts one step and applies position together with
// whichever of direction and speed are present. nis may be nil.
func UpdatePosition(f Filter, s Step, position measurement.Measurement[r2.Vec],
	direction, speed *measurement.Measurement[float64], nis *Nis) core.UpdateInfo {
	s.predict(f)

	var info core.UpdateInfo
	switch presenceOf(direction, speed) {
	case withSpeed | withDirection:
		info = f.UpdatePositionSpeedDirection(position, *speed, *direction, s.Gate)
		nis.addPositionSpeedDirection(info)
	case withSpeed:
		info = f.UpdatePositionSpeed(position, *speed, s.Gate)
	case withDirection:
		info = f.UpdatePositionDirection(position, *direction, s.Gate)
	default:
		info = f.UpdatePosition(position, s.Gate)
		nis.addPosition(info)
	}
	nis.addInnovation(info)
	return info
}

// UpdateNonPosition predicts one step and applies whichever of direction
// and speed are present. It reports false, without predicting, when
// neither is.
func UpdateNonPosition(f Filter, s Step, direction, speed *measurement.Measurement[float64], nis *Nis) (core.UpdateInfo, bool) {
	p := presenceOf(direction, speed)
	if p == 0 {
		return core.UpdateInfo{}, false
	}
	s.predict(f)

	var info core.UpdateInfo
	switch p {
	case withSpeed | withDirection:
		info = f.UpdateSpeedDirection(*speed, *direction, s.Gate)
	case withSpeed:
		info = f.UpdateSpeed(*speed, s.Gate)
	case withDirection:
		info = f.UpdateDirection(*direction, s.Gate)
	}
	nis.addInnovation(info)
	return info, true
}

// UpdateVelocity predicts one step and applies a velocity measurement.
func UpdateVelocity(f Filter, s Step, velocity measurement.Measurement[r2.Vec], nis *Nis) core.UpdateInfo {
	s.predict(f)
	info := f.UpdateVelocity(velocity, s.Gate)
	nis.addInnovation(info)
	return info
}
