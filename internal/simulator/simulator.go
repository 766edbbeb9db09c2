// Package simulator generates a deterministic synthetic vehicle track and
// the noisy position, speed and direction measurements a vehicle would
// report along it, together with the ground truth.
package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config describes the track and the sensors. Angles are in radians, times
// in seconds and distances in metres.
type Config struct {
	Seed     uint64
	Duration float64
	// DT is the interval between measurement cycles.
	DT float64

	// Speed follows a sinusoid between MinSpeed and MaxSpeed with the given
	// period. A negative MinSpeed clamps to zero and produces stops.
	MinSpeed    float64
	MaxSpeed    float64
	SpeedPeriod float64

	// The heading turns at a rate drawn uniformly from ±MaxTurnRate, redrawn
	// every TurnInterval.
	InitialHeading float64
	MaxTurnRate    float64
	TurnInterval   float64

	// AngleOffset is the true offset of the direction sensor, drifting at
	// AngleOffsetDrift per second.
	AngleOffset      float64
	AngleOffsetDrift float64

	// Position fixes arrive every PositionInterval unless dropped.
	PositionInterval        float64
	PositionDropProbability float64
	OutlierProbability      float64
	OutlierDistance         float64

	PositionStdDev  float64
	SpeedStdDev     float64
	DirectionStdDev float64
}

// DefaultConfig returns a two minute drive with stops and a 20 degree
// sensor offset.
func DefaultConfig() Config {
	return Config{
		Seed:                    1,
		Duration:                120,
		DT:                      0.1,
		MinSpeed:                -3,
		MaxSpeed:                15,
		SpeedPeriod:             60,
		InitialHeading:          units.DegreesToRadians(30),
		MaxTurnRate:             units.DegreesToRadians(10),
		TurnInterval:            8,
		AngleOffset:             units.DegreesToRadians(20),
		AngleOffsetDrift:        units.DegreesToRadians(0.01),
		PositionInterval:        1,
		PositionDropProbability: 0.1,
		OutlierProbability:      0.01,
		OutlierDistance:         50,
		PositionStdDev:          2,
		SpeedStdDev:             0.2,
		DirectionStdDev:         units.DegreesToRadians(1),
	}
}

// Validate checks that the configuration can produce a track.
func (c Config) Validate() error {
	switch {
	case !(c.Duration > 0):
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	case !(c.DT > 0) || c.DT > c.Duration:
		return fmt.Errorf("dt must be in (0, duration], got %v", c.DT)
	case c.MaxSpeed < c.MinSpeed || c.MaxSpeed <= 0:
		return fmt.Errorf("speed range [%v, %v] is invalid", c.MinSpeed, c.MaxSpeed)
	case !(c.SpeedPeriod > 0):
		return fmt.Errorf("speed period must be positive, got %v", c.SpeedPeriod)
	case !(c.TurnInterval > 0):
		return fmt.Errorf("turn interval must be positive, got %v", c.TurnInterval)
	case !(c.PositionInterval >= c.DT):
		return fmt.Errorf("position interval %v must not be shorter than dt %v", c.PositionInterval, c.DT)
	case c.PositionDropProbability < 0 || c.PositionDropProbability >= 1:
		return fmt.Errorf("position drop probability must be in [0, 1), got %v", c.PositionDropProbability)
	case c.OutlierProbability < 0 || c.OutlierProbability >= 1:
		return fmt.Errorf("outlier probability must be in [0, 1), got %v", c.OutlierProbability)
	case !(c.PositionStdDev > 0 && c.SpeedStdDev > 0 && c.DirectionStdDev > 0):
		return fmt.Errorf("measurement standard deviations must be positive")
	}
	return nil
}

// Simulator produces measurement cycles from a Config.
type Simulator struct {
	cfg     Config
	normal  distuv.Normal
	uniform distuv.Uniform
}

// New returns a simulator seeded from cfg.Seed.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	return &Simulator{
		cfg:     cfg,
		normal:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}, nil
}

// Generate returns the measurement cycles in time order.
func (s *Simulator) Generate() []measurement.Measurements {
	c := s.cfg
	n := int(math.Floor(c.Duration/c.DT)) + 1
	times := make([]float64, n)
	floats.Span(times, 0, float64(n-1)*c.DT)

	positionEvery := int(math.Round(c.PositionInterval / c.DT))
	turnEvery := int(math.Max(1, math.Round(c.TurnInterval/c.DT)))

	position := r2.Vec{}
	heading := c.InitialHeading
	offset := c.AngleOffset
	turnRate := 0.0

	out := make([]measurement.Measurements, 0, n)
	for i, t := range times {
		if i > 0 {
			dt := t - times[i-1]
			speed := s.speed(times[i-1])
			position = r2.Add(position, r2.Scale(speed*dt, r2.Vec{X: math.Cos(heading), Y: math.Sin(heading)}))
			if speed > 0 {
				heading = units.NormalizeAngle(heading + turnRate*dt)
			}
			offset = units.NormalizeAngle(offset + c.AngleOffsetDrift*dt)
		}
		if i%turnEvery == 0 {
			turnRate = (2*s.uniform.Rand() - 1) * c.MaxTurnRate
		}

		speed := s.speed(t)
		m := measurement.Measurements{
			Time: t,
			TrueData: &measurement.TrueData{
				Position: position,
				Speed:    speed,
				Angle:    offset,
			},
			Speed: &measurement.Measurement[float64]{
				Value:    math.Abs(speed + c.SpeedStdDev*s.normal.Rand()),
				Variance: c.SpeedStdDev * c.SpeedStdDev,
			},
			Direction: &measurement.Measurement[float64]{
				Value:    units.NormalizeAngle(heading + offset + c.DirectionStdDev*s.normal.Rand()),
				Variance: c.DirectionStdDev * c.DirectionStdDev,
			},
		}
		if i%positionEvery == 0 && s.uniform.Rand() >= c.PositionDropProbability {
			m.Position = s.fix(position)
		}
		out = append(out, m)
	}
	return out
}

func (s *Simulator) speed(t float64) float64 {
	c := s.cfg
	mid := (c.MaxSpeed + c.MinSpeed) / 2
	amplitude := (c.MaxSpeed - c.MinSpeed) / 2
	v := mid - amplitude*math.Cos(2*math.Pi*t/c.SpeedPeriod)
	return math.Max(0, math.Min(c.MaxSpeed, v))
}

func (s *Simulator) fix(truth r2.Vec) *measurement.Position {
	c := s.cfg
	sd := c.PositionStdDev
	value := r2.Vec{
		X: truth.X + sd*s.normal.Rand(),
		Y: truth.Y + sd*s.normal.Rand(),
	}
	if s.uniform.Rand() < c.OutlierProbability {
		a := 2 * math.Pi * s.uniform.Rand()
		value = r2.Add(value, r2.Scale(c.OutlierDistance, r2.Vec{X: math.Cos(a), Y: math.Sin(a)}))
	}
	variance := r2.Vec{X: sd * sd, Y: sd * sd}
	return &measurement.Position{Value: value, Variance: &variance}
}
