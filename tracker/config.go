package tracker

import (
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/flow"
	"github.com/nvr-ai/go-track/kdtree"
	"github.com/nvr-ai/go-track/matcher"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// maxConfigSize caps the size of configuration files read by LoadConfig.
const maxConfigSize = 1 * 1024 * 1024

// Config contains the tracker parameters.
type Config struct {
	// Matcher configures the ratio-test descriptor matcher.
	Matcher matcher.Config `json:"matcher" yaml:"matcher"`

	// Flow configures the optical-flow fallback for unmatched features.
	Flow flow.Config `json:"flow" yaml:"flow"`

	// WindowMargin is the fraction of the rectangle size added on each side
	// to form the search window.
	WindowMargin float64 `json:"window_margin" yaml:"window_margin"`

	// MinResolvedPoints is the number of consistent points required to keep
	// tracking. It is clamped to the template size.
	MinResolvedPoints int `json:"min_resolved_points" yaml:"min_resolved_points"`

	// OutlierDistance is the largest distance (pixels) a point displacement
	// may lie from the median displacement to count as an inlier.
	OutlierDistance float64 `json:"outlier_distance" yaml:"outlier_distance"`

	// RefineMatches refines matched locations with the flow solver, seeded at
	// the matched displacement.
	RefineMatches bool `json:"refine_matches" yaml:"refine_matches"`

	// LeafSize is the kd-tree leaf bucket size.
	LeafSize int `json:"leaf_size" yaml:"leaf_size"`
}

// DefaultConfig returns the default tracker configuration.
//
// Returns:
//   - Config: The configuration used when New is called without WithConfig.
//
// @example
// config := tracker.DefaultConfig()
// config.Flow.PyramidLevels = 3
// t, err := tracker.New(frame, template, rect, tracker.WithConfig(config))
func DefaultConfig() Config {
	return Config{
		Matcher:           matcher.DefaultConfig(),
		Flow:              flow.DefaultConfig(),
		WindowMargin:      0.2,
		MinResolvedPoints: 3,
		OutlierDistance:   5,
		RefineMatches:     false,
		LeafSize:          kdtree.DefaultLeafSize,
	}
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	if err := c.Matcher.Validate(); err != nil {
		return errors.Wrap(err, "invalid matcher config")
	}
	if err := c.Flow.Validate(); err != nil {
		return errors.Wrap(err, "invalid flow config")
	}
	if c.WindowMargin < 0 {
		return errors.Wrapf(features.ErrInvalidInput, "window_margin must not be negative, got %v", c.WindowMargin)
	}
	if c.MinResolvedPoints < 1 {
		return errors.Wrapf(features.ErrInvalidInput, "min_resolved_points must be positive, got %d", c.MinResolvedPoints)
	}
	if c.OutlierDistance <= 0 {
		return errors.Wrapf(features.ErrInvalidInput, "outlier_distance must be positive, got %v", c.OutlierDistance)
	}
	if c.LeafSize < 1 {
		return errors.Wrapf(features.ErrInvalidInput, "leaf_size must be positive, got %d", c.LeafSize)
	}
	return nil
}

// LoadConfig reads a YAML configuration file over the defaults.
//
// The file must have a .yaml or .yml extension and be at most 1 MiB. Fields
// omitted from the file keep their default values, so partial files are safe.
//
// Arguments:
//   - path: The configuration file path.
//
// Returns:
//   - Config: The merged, validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return Config{}, errors.Errorf("config file must have a .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to stat config file")
	}
	if info.Size() > maxConfigSize {
		return Config{}, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config YAML")
	}
	if err := config.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to write config file")
}
