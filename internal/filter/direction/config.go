package direction

import (
	"fmt"

	"github.com/banshee-data/heading/internal/config"
	"github.com/banshee-data/heading/internal/filter/noise"
	"gonum.org/v1/gonum/spatial/r2"
)

// Variant selects the state layout of the heading filter.
type Variant string

const (
	// Variant10 estimates position, velocity and heading offset.
	Variant10 Variant = config.Variant10
	// Variant11 adds the heading offset rate.
	Variant11 Variant = config.Variant11
	// Variant21 adds acceleration to Variant11.
	Variant21 Variant = config.Variant21
)

// Init holds the initial values and variances for the states that a
// position/velocity reset does not provide.
type Init struct {
	Angle                float64
	AngleVariance        float64
	AngleSpeed           float64
	AngleSpeedVariance   float64
	Acceleration         float64
	AccelerationVariance float64
}

// Config holds the orchestrator parameters.
type Config struct {
	Variant                 Variant
	MeasurementQueueSize    int
	ResetDT                 float64
	AngleEstimationVariance float64
	// Gate is the Mahalanobis distance above which measurements are
	// rejected. Nil disables gating.
	Gate              *float64
	SigmaPointsAlpha  float64
	FadingMemoryAlpha float64
	PositionNoise     noise.Model
	AngleNoise        noise.Model
	Init              Init

	StandingSpeedLimit        float64
	StandingVelocityMagnitude float64
	StandingVelocityVariance  float64
	// StandingVelocityDefault is used when the filter velocity has no
	// direction to scale.
	StandingVelocityDefault   r2.Vec
	StandingNoise             noise.Model
	StandingFadingMemoryAlpha float64
}

// DefaultConfig returns the built-in tuning defaults.
func DefaultConfig() Config {
	cfg, err := ConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(fmt.Sprintf("direction: built-in defaults are invalid: %v", err))
	}
	return cfg
}

// ConfigFromTuning converts a tuning file into a Config.
func ConfigFromTuning(t *config.TuningConfig) (Config, error) {
	if err := t.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid tuning: %w", err)
	}

	pn := t.GetPositionNoise()
	positionNoise, err := noise.Parse(pn.Kind, pn.Value)
	if err != nil {
		return Config{}, fmt.Errorf("position_noise: %w", err)
	}
	an := t.GetAngleNoise()
	angleNoise, err := noise.Parse(an.Kind, an.Value)
	if err != nil {
		return Config{}, fmt.Errorf("angle_noise: %w", err)
	}

	cfg := Config{
		Variant:                 Variant(t.GetFilterVariant()),
		MeasurementQueueSize:    t.GetMeasurementQueueSize(),
		ResetDT:                 t.GetResetDT(),
		AngleEstimationVariance: t.GetAngleEstimationVariance(),
		SigmaPointsAlpha:        t.GetSigmaPointsAlpha(),
		FadingMemoryAlpha:       t.GetFadingMemoryAlpha(),
		PositionNoise:           positionNoise,
		AngleNoise:              angleNoise,
		Init: Init{
			Angle:                t.GetInitAngle(),
			AngleVariance:        t.GetInitAngleVariance(),
			AngleSpeed:           t.GetInitAngleSpeed(),
			AngleSpeedVariance:   t.GetInitAngleSpeedVariance(),
			AccelerationVariance: t.GetInitAccelerationVariance(),
		},
		StandingSpeedLimit:        t.GetStandingSpeedLimit(),
		StandingVelocityMagnitude: t.GetStandingVelocityMagnitude(),
		StandingVelocityVariance:  t.GetStandingVelocityVariance(),
		StandingVelocityDefault:   r2.Vec{X: 0.001, Y: 0.001},
		StandingNoise:             noise.Discrete{Variance: 0},
		StandingFadingMemoryAlpha: 1,
	}
	if gate, ok := t.GetGate(); ok {
		cfg.Gate = &gate
	}
	return cfg, nil
}
