package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "filter_variant": "2_1",
  "measurement_queue_size": 5,
  "reset_dt": 3,
  "gate": 4.5,
  "sigma_points_alpha": 0.1,
  "position_noise": {"kind": "continuous", "value": 0.5}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetFilterVariant(); got != Variant21 {
		t.Errorf("GetFilterVariant() = %q, want %q", got, Variant21)
	}
	if got := cfg.GetMeasurementQueueSize(); got != 5 {
		t.Errorf("GetMeasurementQueueSize() = %d, want 5", got)
	}
	if got := cfg.GetResetDT(); got != 3 {
		t.Errorf("GetResetDT() = %v, want 3", got)
	}
	if gate, ok := cfg.GetGate(); !ok || gate != 4.5 {
		t.Errorf("GetGate() = %v, %v, want 4.5, true", gate, ok)
	}
	if got := cfg.GetSigmaPointsAlpha(); got != 0.1 {
		t.Errorf("GetSigmaPointsAlpha() = %v, want 0.1", got)
	}
	if got := cfg.GetPositionNoise(); got != (NoiseConfig{Kind: NoiseContinuous, Value: 0.5}) {
		t.Errorf("GetPositionNoise() = %+v", got)
	}
	// Omitted fields fall back to defaults.
	if got := cfg.GetAngleNoise(); got.Kind != NoiseDiscrete {
		t.Errorf("GetAngleNoise().Kind = %q, want %q", got.Kind, NoiseDiscrete)
	}
	if got := cfg.GetFadingMemoryAlpha(); got != 1 {
		t.Errorf("GetFadingMemoryAlpha() = %v, want 1", got)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	if err := os.WriteFile(configPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for invalid JSON, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("config.yaml")
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")
	data := make([]byte, 1024*1024+1)
	for i := range data {
		data[i] = ' '
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	_, err := LoadTuningConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr string
	}{
		{name: "empty", cfg: &TuningConfig{}},
		{
			name:    "unknown variant",
			cfg:     &TuningConfig{FilterVariant: ptrString("3_0")},
			wantErr: "filter_variant",
		},
		{
			name:    "zero queue",
			cfg:     &TuningConfig{MeasurementQueueSize: ptrInt(0)},
			wantErr: "measurement_queue_size",
		},
		{
			name:    "negative reset",
			cfg:     &TuningConfig{ResetDT: ptrFloat64(-1)},
			wantErr: "reset_dt",
		},
		{
			name:    "infinite variance",
			cfg:     &TuningConfig{InitVelocityVariance: ptrFloat64(math.Inf(1))},
			wantErr: "init_velocity_variance",
		},
		{
			name: "zero gate disables",
			cfg:  &TuningConfig{Gate: ptrFloat64(0)},
		},
		{
			name:    "negative gate",
			cfg:     &TuningConfig{Gate: ptrFloat64(-1)},
			wantErr: "gate",
		},
		{
			name:    "alpha above one",
			cfg:     &TuningConfig{SigmaPointsAlpha: ptrFloat64(1.5)},
			wantErr: "sigma_points_alpha",
		},
		{
			name:    "fading memory below one",
			cfg:     &TuningConfig{FadingMemoryAlpha: ptrFloat64(0.9)},
			wantErr: "fading_memory_alpha",
		},
		{
			name:    "unknown noise",
			cfg:     &TuningConfig{AngleNoise: &NoiseConfig{Kind: "pink", Value: 1}},
			wantErr: "angle_noise.kind",
		},
		{
			name:    "negative noise",
			cfg:     &TuningConfig{PositionNoise: &NoiseConfig{Kind: NoiseDiscrete, Value: -1}},
			wantErr: "position_noise.value",
		},
		{
			name:    "nan angle",
			cfg:     &TuningConfig{InitAngle: ptrFloat64(math.NaN())},
			wantErr: "init_angle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	empty := EmptyTuningConfig()

	// The defaults file and the built-in getter defaults must agree.
	checks := []struct {
		name      string
		file, got float64
	}{
		{"reset_dt", cfg.GetResetDT(), empty.GetResetDT()},
		{"angle_estimation_variance", cfg.GetAngleEstimationVariance(), empty.GetAngleEstimationVariance()},
		{"sigma_points_alpha", cfg.GetSigmaPointsAlpha(), empty.GetSigmaPointsAlpha()},
		{"fading_memory_alpha", cfg.GetFadingMemoryAlpha(), empty.GetFadingMemoryAlpha()},
		{"init_angle_variance", cfg.GetInitAngleVariance(), empty.GetInitAngleVariance()},
		{"init_angle_speed_variance", cfg.GetInitAngleSpeedVariance(), empty.GetInitAngleSpeedVariance()},
		{"init_acceleration_variance", cfg.GetInitAccelerationVariance(), empty.GetInitAccelerationVariance()},
		{"init_velocity_variance", cfg.GetInitVelocityVariance(), empty.GetInitVelocityVariance()},
		{"standing_speed_limit", cfg.GetStandingSpeedLimit(), empty.GetStandingSpeedLimit()},
		{"standing_velocity_magnitude", cfg.GetStandingVelocityMagnitude(), empty.GetStandingVelocityMagnitude()},
		{"standing_velocity_variance", cfg.GetStandingVelocityVariance(), empty.GetStandingVelocityVariance()},
		{"estimation_process_variance", cfg.GetEstimationProcessVariance(), empty.GetEstimationProcessVariance()},
		{"angle_noise", cfg.GetAngleNoise().Value, empty.GetAngleNoise().Value},
		{"position_noise", cfg.GetPositionNoise().Value, empty.GetPositionNoise().Value},
	}
	for _, c := range checks {
		if math.Abs(c.file-c.got) > 1e-12*math.Max(1, math.Abs(c.got)) {
			t.Errorf("%s: defaults file %v, built-in %v", c.name, c.file, c.got)
		}
	}
	if cfg.GetFilterVariant() != empty.GetFilterVariant() {
		t.Errorf("filter_variant: defaults file %q, built-in %q", cfg.GetFilterVariant(), empty.GetFilterVariant())
	}
	if cfg.GetMeasurementQueueSize() != empty.GetMeasurementQueueSize() {
		t.Errorf("measurement_queue_size: defaults file %d, built-in %d",
			cfg.GetMeasurementQueueSize(), empty.GetMeasurementQueueSize())
	}
	if _, ok := cfg.GetGate(); ok {
		t.Error("defaults file should not enable gating")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetMeasurementQueueSize() != 20 {
		t.Errorf("GetMeasurementQueueSize() = %d, want 20", cfg.GetMeasurementQueueSize())
	}
}
