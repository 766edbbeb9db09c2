package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Filter variants accepted by filter_variant.
const (
	Variant10 = "1_0"
	Variant11 = "1_1"
	Variant21 = "2_1"
)

// Noise model kinds accepted by position_noise and angle_noise.
const (
	NoiseContinuous = "continuous"
	NoiseDiscrete   = "discrete"
)

// NoiseConfig selects a process noise model. Value is a spectral density
// for continuous noise and a variance for discrete noise.
type NoiseConfig struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

// TuningConfig represents the root configuration for heading filter tuning
// parameters. Angles are in radians and times in seconds.
type TuningConfig struct {
	// Filter selection
	FilterVariant        *string  `json:"filter_variant,omitempty"`
	MeasurementQueueSize *int     `json:"measurement_queue_size,omitempty"`
	ResetDT              *float64 `json:"reset_dt,omitempty"`

	// UKF params
	AngleEstimationVariance *float64     `json:"angle_estimation_variance,omitempty"`
	Gate                    *float64     `json:"gate,omitempty"` // Mahalanobis distance, 0 disables
	SigmaPointsAlpha        *float64     `json:"sigma_points_alpha,omitempty"`
	FadingMemoryAlpha       *float64     `json:"fading_memory_alpha,omitempty"`
	PositionNoise           *NoiseConfig `json:"position_noise,omitempty"`
	AngleNoise              *NoiseConfig `json:"angle_noise,omitempty"`

	// Initial state for a filter reset
	InitAngle                *float64 `json:"init_angle,omitempty"`
	InitAngleVariance        *float64 `json:"init_angle_variance,omitempty"`
	InitAngleSpeed           *float64 `json:"init_angle_speed,omitempty"`
	InitAngleSpeedVariance   *float64 `json:"init_angle_speed_variance,omitempty"`
	InitAccelerationVariance *float64 `json:"init_acceleration_variance,omitempty"`
	InitVelocityVariance     *float64 `json:"init_velocity_variance,omitempty"`

	// Standing detection
	StandingSpeedLimit        *float64 `json:"standing_speed_limit,omitempty"`
	StandingVelocityMagnitude *float64 `json:"standing_velocity_magnitude,omitempty"`
	StandingVelocityVariance  *float64 `json:"standing_velocity_variance,omitempty"`

	// Auxiliary position/velocity estimator
	EstimationProcessVariance *float64 `json:"estimation_process_variance,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,             // from cmd/navsim/ run as ../
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/filter/direction/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FilterVariant != nil {
		switch *c.FilterVariant {
		case Variant10, Variant11, Variant21:
		default:
			return fmt.Errorf("filter_variant must be one of %s, %s, %s, got %q",
				Variant10, Variant11, Variant21, *c.FilterVariant)
		}
	}

	if c.MeasurementQueueSize != nil && *c.MeasurementQueueSize < 1 {
		return fmt.Errorf("measurement_queue_size must be positive, got %d", *c.MeasurementQueueSize)
	}

	positive := []struct {
		name  string
		value *float64
	}{
		{"reset_dt", c.ResetDT},
		{"angle_estimation_variance", c.AngleEstimationVariance},
		{"init_angle_variance", c.InitAngleVariance},
		{"init_angle_speed_variance", c.InitAngleSpeedVariance},
		{"init_acceleration_variance", c.InitAccelerationVariance},
		{"init_velocity_variance", c.InitVelocityVariance},
		{"standing_velocity_magnitude", c.StandingVelocityMagnitude},
		{"standing_velocity_variance", c.StandingVelocityVariance},
	}
	for _, p := range positive {
		if p.value != nil && !(*p.value > 0 && !math.IsInf(*p.value, 0)) {
			return fmt.Errorf("%s must be a positive finite number, got %v", p.name, *p.value)
		}
	}

	nonNegative := []struct {
		name  string
		value *float64
	}{
		{"gate", c.Gate},
		{"standing_speed_limit", c.StandingSpeedLimit},
		{"estimation_process_variance", c.EstimationProcessVariance},
	}
	for _, p := range nonNegative {
		if p.value != nil && !(*p.value >= 0 && !math.IsInf(*p.value, 0)) {
			return fmt.Errorf("%s must be a non-negative finite number, got %v", p.name, *p.value)
		}
	}

	if c.SigmaPointsAlpha != nil && !(*c.SigmaPointsAlpha > 0 && *c.SigmaPointsAlpha <= 1) {
		return fmt.Errorf("sigma_points_alpha must be in (0, 1], got %v", *c.SigmaPointsAlpha)
	}
	if c.FadingMemoryAlpha != nil && !(*c.FadingMemoryAlpha >= 1 && !math.IsInf(*c.FadingMemoryAlpha, 0)) {
		return fmt.Errorf("fading_memory_alpha must be >= 1, got %v", *c.FadingMemoryAlpha)
	}

	for name, n := range map[string]*NoiseConfig{"position_noise": c.PositionNoise, "angle_noise": c.AngleNoise} {
		if n == nil {
			continue
		}
		if n.Kind != NoiseContinuous && n.Kind != NoiseDiscrete {
			return fmt.Errorf("%s.kind must be %s or %s, got %q", name, NoiseContinuous, NoiseDiscrete, n.Kind)
		}
		if !(n.Value >= 0 && !math.IsInf(n.Value, 0)) {
			return fmt.Errorf("%s.value must be a non-negative finite number, got %v", name, n.Value)
		}
	}

	for name, v := range map[string]*float64{"init_angle": c.InitAngle, "init_angle_speed": c.InitAngleSpeed} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be finite, got %v", name, *v)
		}
	}

	return nil
}

// GetFilterVariant returns the filter_variant value or the default.
func (c *TuningConfig) GetFilterVariant() string {
	if c.FilterVariant == nil {
		return Variant11 // default
	}
	return *c.FilterVariant
}

// GetMeasurementQueueSize returns the measurement_queue_size value or the default.
func (c *TuningConfig) GetMeasurementQueueSize() int {
	if c.MeasurementQueueSize == nil {
		return 20 // default
	}
	return *c.MeasurementQueueSize
}

// GetResetDT returns the reset_dt value or the default.
func (c *TuningConfig) GetResetDT() float64 {
	if c.ResetDT == nil {
		return 10 // default
	}
	return *c.ResetDT
}

// GetAngleEstimationVariance returns the angle_estimation_variance value or the default.
func (c *TuningConfig) GetAngleEstimationVariance() float64 {
	if c.AngleEstimationVariance == nil {
		return degreesSquared(20) // default
	}
	return *c.AngleEstimationVariance
}

// GetGate returns the gate and whether gating is enabled.
func (c *TuningConfig) GetGate() (float64, bool) {
	if c.Gate == nil || *c.Gate == 0 {
		return 0, false // default: no gating
	}
	return *c.Gate, true
}

// GetSigmaPointsAlpha returns the sigma_points_alpha value or the default.
func (c *TuningConfig) GetSigmaPointsAlpha() float64 {
	if c.SigmaPointsAlpha == nil {
		return 1 // default
	}
	return *c.SigmaPointsAlpha
}

// GetFadingMemoryAlpha returns the fading_memory_alpha value or the default.
func (c *TuningConfig) GetFadingMemoryAlpha() float64 {
	if c.FadingMemoryAlpha == nil {
		return 1 // default
	}
	return *c.FadingMemoryAlpha
}

// GetPositionNoise returns the position_noise value or the default.
func (c *TuningConfig) GetPositionNoise() NoiseConfig {
	if c.PositionNoise == nil {
		return NoiseConfig{Kind: NoiseDiscrete, Value: 4} // default
	}
	return *c.PositionNoise
}

// GetAngleNoise returns the angle_noise value or the default.
func (c *TuningConfig) GetAngleNoise() NoiseConfig {
	if c.AngleNoise == nil {
		return NoiseConfig{Kind: NoiseDiscrete, Value: degreesSquared(0.001)} // default
	}
	return *c.AngleNoise
}

// GetInitAngle returns the init_angle value or the default.
func (c *TuningConfig) GetInitAngle() float64 {
	if c.InitAngle == nil {
		return 0 // default
	}
	return *c.InitAngle
}

// GetInitAngleVariance returns the init_angle_variance value or the default.
func (c *TuningConfig) GetInitAngleVariance() float64 {
	if c.InitAngleVariance == nil {
		return degreesSquared(100) // default
	}
	return *c.InitAngleVariance
}

// GetInitAngleSpeed returns the init_angle_speed value or the default.
func (c *TuningConfig) GetInitAngleSpeed() float64 {
	if c.InitAngleSpeed == nil {
		return 0 // default
	}
	return *c.InitAngleSpeed
}

// GetInitAngleSpeedVariance returns the init_angle_speed_variance value or the default.
func (c *TuningConfig) GetInitAngleSpeedVariance() float64 {
	if c.InitAngleSpeedVariance == nil {
		return degreesSquared(1) // default
	}
	return *c.InitAngleSpeedVariance
}

// GetInitAccelerationVariance returns the init_acceleration_variance value or the default.
func (c *TuningConfig) GetInitAccelerationVariance() float64 {
	if c.InitAccelerationVariance == nil {
		return 100 // default
	}
	return *c.InitAccelerationVariance
}

// GetInitVelocityVariance returns the init_velocity_variance value or the default.
func (c *TuningConfig) GetInitVelocityVariance() float64 {
	if c.InitVelocityVariance == nil {
		return 900 // default
	}
	return *c.InitVelocityVariance
}

// GetStandingSpeedLimit returns the standing_speed_limit value or the default.
func (c *TuningConfig) GetStandingSpeedLimit() float64 {
	if c.StandingSpeedLimit == nil {
		return 0.1 // default
	}
	return *c.StandingSpeedLimit
}

// GetStandingVelocityMagnitude returns the standing_velocity_magnitude value or the default.
func (c *TuningConfig) GetStandingVelocityMagnitude() float64 {
	if c.StandingVelocityMagnitude == nil {
		return 0.001 * math.Sqrt2 // default
	}
	return *c.StandingVelocityMagnitude
}

// GetStandingVelocityVariance returns the standing_velocity_variance value or the default.
func (c *TuningConfig) GetStandingVelocityVariance() float64 {
	if c.StandingVelocityVariance == nil {
		return 0.01 // default
	}
	return *c.StandingVelocityVariance
}

// GetEstimationProcessVariance returns the estimation_process_variance value or the default.
func (c *TuningConfig) GetEstimationProcessVariance() float64 {
	if c.EstimationProcessVariance == nil {
		return 1 // default
	}
	return *c.EstimationProcessVariance
}

func degreesSquared(d float64) float64 {
	r := d * math.Pi / 180
	return r * r
}
