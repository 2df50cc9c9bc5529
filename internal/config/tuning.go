package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/banshee-data/scavenger/internal/scavenger/l5localize"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/scavenger/pipeline"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Registry backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// TuningConfig holds every tunable of a pipeline run. All fields are
// optional; the Get* methods supply defaults for missing ones.
type TuningConfig struct {
	// Windowing and correlation
	IntervalS        *float64 `json:"interval_s,omitempty"`
	EarlyFlush       *bool    `json:"early_flush,omitempty"`
	MinDetectionRate *int     `json:"min_detection_rate,omitempty"`

	// Identity resolution
	WalkingSpeedKmh   *float64 `json:"walking_speed_kmh,omitempty"`
	InBurstThresholdS *float64 `json:"in_burst_threshold_s,omitempty"`

	// Localizer
	AmountOfDraws    *int     `json:"amount_of_draws,omitempty"`
	MeterPerBin      *float64 `json:"meter_per_bin,omitempty"`
	PathLossExponent *float64 `json:"path_loss_exponent,omitempty"`
	ReferenceDBm     *float64 `json:"reference_dbm,omitempty"`
	FScale           *float64 `json:"f_scale,omitempty"`
	Loss             *string  `json:"loss,omitempty"`
	VarianceImpact   *string  `json:"variance_impact,omitempty"`
	SolverWorkers    *int     `json:"solver_workers,omitempty"`
	// Seed fixes the restart generator; unset means time-seeded.
	Seed *uint64 `json:"seed,omitempty"`

	// Registry
	RegistryBackend *string `json:"registry_backend,omitempty"`
	RedisAddr       *string `json:"redis_addr,omitempty"`
}

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
	data, err := readConfigFile(path, ".json")
	if err != nil {
		return nil, err
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readConfigFile reads a small config file after checking its extension
// against allowed.
func readConfigFile(path string, allowed ...string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	ok := false
	for _, a := range allowed {
		if ext == a {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("config file must have one of extensions %v, got %q", allowed, ext)
	}

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
	return data, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/scavenger/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/scavenger/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func positive(name string, v *float64) error {
	if v != nil && (!(*v > 0) || math.IsInf(*v, 0)) {
		return fmt.Errorf("%s must be a positive number, got %v", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	var errs []error
	for name, v := range map[string]*float64{
		"interval_s":         c.IntervalS,
		"walking_speed_kmh":  c.WalkingSpeedKmh,
		"meter_per_bin":      c.MeterPerBin,
		"path_loss_exponent": c.PathLossExponent,
		"f_scale":            c.FScale,
	} {
		errs = append(errs, positive(name, v))
	}

	if c.InBurstThresholdS != nil && (*c.InBurstThresholdS < 0 || math.IsNaN(*c.InBurstThresholdS)) {
		errs = append(errs, fmt.Errorf("in_burst_threshold_s must be non-negative, got %v", *c.InBurstThresholdS))
	}
	if c.ReferenceDBm != nil && (math.IsNaN(*c.ReferenceDBm) || math.IsInf(*c.ReferenceDBm, 0)) {
		errs = append(errs, fmt.Errorf("reference_dbm must be finite, got %v", *c.ReferenceDBm))
	}
	if c.MinDetectionRate != nil && *c.MinDetectionRate < 1 {
		errs = append(errs, fmt.Errorf("min_detection_rate must be at least 1, got %d", *c.MinDetectionRate))
	}
	if c.AmountOfDraws != nil && *c.AmountOfDraws < 0 {
		errs = append(errs, fmt.Errorf("amount_of_draws must be non-negative, got %d", *c.AmountOfDraws))
	}
	if c.SolverWorkers != nil && *c.SolverWorkers < 1 {
		errs = append(errs, fmt.Errorf("solver_workers must be at least 1, got %d", *c.SolverWorkers))
	}
	if c.Loss != nil {
		if _, err := l5localize.ParseLoss(*c.Loss); err != nil {
			errs = append(errs, fmt.Errorf("loss: %w", err))
		}
	}
	if c.VarianceImpact != nil {
		if _, err := l5localize.ParseVarianceImpact(*c.VarianceImpact); err != nil {
			errs = append(errs, fmt.Errorf("variance_impact: %w", err))
		}
	}
	if c.RegistryBackend != nil {
		switch *c.RegistryBackend {
		case BackendSQLite, BackendRedis, BackendMemory:
		default:
			errs = append(errs, fmt.Errorf("registry_backend must be one of %s, %s, %s, got %q",
				BackendSQLite, BackendRedis, BackendMemory, *c.RegistryBackend))
		}
	}
	return errors.Join(errs...)
}

func seconds(v *float64, def float64) time.Duration {
	s := def
	if v != nil {
		s = *v
	}
	return time.Duration(s * float64(time.Second))
}

// GetInterval returns the window interval.
func (c *TuningConfig) GetInterval() time.Duration { return seconds(c.IntervalS, 10) }

// GetEarlyFlush returns the early_flush value or the default.
func (c *TuningConfig) GetEarlyFlush() bool {
	if c.EarlyFlush == nil {
		return true // default: flush every bucket once a second one appears
	}
	return *c.EarlyFlush
}

// GetMinDetectionRate returns the min_detection_rate value or the default.
func (c *TuningConfig) GetMinDetectionRate() int {
	if c.MinDetectionRate == nil {
		return 3
	}
	return *c.MinDetectionRate
}

// GetWalkingSpeedKmh returns the walking_speed_kmh value or the default.
func (c *TuningConfig) GetWalkingSpeedKmh() float64 {
	if c.WalkingSpeedKmh == nil {
		return 2
	}
	return *c.WalkingSpeedKmh
}

// GetInBurstThreshold returns the burst threshold.
func (c *TuningConfig) GetInBurstThreshold() time.Duration { return seconds(c.InBurstThresholdS, 1) }

// GetAmountOfDraws returns the amount_of_draws value or the default.
func (c *TuningConfig) GetAmountOfDraws() int {
	if c.AmountOfDraws == nil {
		return 20
	}
	return *c.AmountOfDraws
}

// GetMeterPerBin returns the meter_per_bin value or the default.
func (c *TuningConfig) GetMeterPerBin() float64 {
	if c.MeterPerBin == nil {
		return 0.5
	}
	return *c.MeterPerBin
}

// GetPathLossExponent returns the path_loss_exponent value or the default.
func (c *TuningConfig) GetPathLossExponent() float64 {
	if c.PathLossExponent == nil {
		return 2
	}
	return *c.PathLossExponent
}

// GetReferenceDBm returns the reference_dbm value or the default.
func (c *TuningConfig) GetReferenceDBm() float64 {
	if c.ReferenceDBm == nil {
		return 30
	}
	return *c.ReferenceDBm
}

// GetFScale returns the f_scale value or the default.
func (c *TuningConfig) GetFScale() float64 {
	if c.FScale == nil {
		return 1
	}
	return *c.FScale
}

// GetLoss returns the robust loss. Invalid names fall back to the default;
// Validate reports them.
func (c *TuningConfig) GetLoss() l5localize.Loss {
	if c.Loss == nil {
		return l5localize.LossCauchy
	}
	l, err := l5localize.ParseLoss(*c.Loss)
	if err != nil {
		return l5localize.LossCauchy
	}
	return l
}

// GetVarianceImpact returns the variance mode or the default.
func (c *TuningConfig) GetVarianceImpact() l5localize.VarianceImpact {
	if c.VarianceImpact == nil {
		return l5localize.VarianceNone
	}
	v, err := l5localize.ParseVarianceImpact(*c.VarianceImpact)
	if err != nil {
		return l5localize.VarianceNone
	}
	return v
}

// GetSolverWorkers returns the solver_workers value or the default.
func (c *TuningConfig) GetSolverWorkers() int {
	if c.SolverWorkers == nil {
		return 4
	}
	return *c.SolverWorkers
}

// GetSeed returns the fixed seed, if any.
func (c *TuningConfig) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetRegistryBackend returns the registry_backend value or the default.
func (c *TuningConfig) GetRegistryBackend() string {
	if c.RegistryBackend == nil || *c.RegistryBackend == "" {
		return BackendSQLite
	}
	return *c.RegistryBackend
}

// GetRedisAddr returns the redis_addr value or the default.
func (c *TuningConfig) GetRedisAddr() string {
	if c.RedisAddr == nil || *c.RedisAddr == "" {
		return "localhost:6379"
	}
	return *c.RedisAddr
}

// LocalizerOptions assembles the localizer options.
func (c *TuningConfig) LocalizerOptions() l5localize.Options {
	return l5localize.Options{
		AmountOfDraws:    c.GetAmountOfDraws(),
		MeterPerBin:      c.GetMeterPerBin(),
		PathLossExponent: c.GetPathLossExponent(),
		ReferenceDBm:     c.GetReferenceDBm(),
		FScale:           c.GetFScale(),
		Loss:             c.GetLoss(),
		VarianceImpact:   c.GetVarianceImpact(),
		Workers:          c.GetSolverWorkers(),
	}
}

// PipelineConfig assembles the pipeline configuration.
func (c *TuningConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Interval:         c.GetInterval(),
		EarlyFlush:       c.GetEarlyFlush(),
		MinDetectionRate: c.GetMinDetectionRate(),
		Resolver: l6identity.Config{
			WalkingSpeedKmh:  c.GetWalkingSpeedKmh(),
			InBurstThreshold: c.GetInBurstThreshold(),
		},
	}
}
