package config

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/pelagic-data/bathy.report/internal/geo"
	"github.com/pelagic-data/bathy.report/internal/sonar"
)

// DefaultConfigPath is the path to the canonical processing defaults file.
// This is the single source of truth for all default processing values.
const DefaultConfigPath = "config/processing.defaults.json"

// ProcessingConfig is the root configuration for a processing run. All
// fields are optional pointers so partial JSON files work: fields omitted
// from the file fall back to the defaults provided by the Get* accessors.
type ProcessingConfig struct {
	// Coordinate and vertical reference selection
	CRS               *geo.CRSSpec `json:"crs,omitempty"`
	VerticalReference *string      `json:"vertical_reference,omitempty"` // waterline, ellipse, chart_datum
	DatumSeparation   *float64     `json:"datum_separation,omitempty"`   // meters, chart datum below ellipsoid

	// Sound velocity cast selection
	CastTieBreak *string `json:"cast_tie_break,omitempty"` // earliest, location

	// Chunking and scheduling
	ChunkTargetBeams *int `json:"chunk_target_beams,omitempty"`
	Workers          *int `json:"workers,omitempty"`

	// Uncertainty model magnitudes, one-sigma
	Uncertainty *sonar.UncertaintyConfig `json:"uncertainty,omitempty"`

	// Export
	ExportDir *string `json:"export_dir,omitempty"`
}

// EmptyProcessingConfig returns a ProcessingConfig with all fields set to
// nil. Use LoadProcessingConfig to load actual values from a file.
func EmptyProcessingConfig() *ProcessingConfig {
	return &ProcessingConfig{}
}

// LoadProcessingConfig loads a ProcessingConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadProcessingConfig(path string) (*ProcessingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyProcessingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical processing defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *ProcessingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadProcessingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ProcessingConfig) Validate() error {
	if c.VerticalReference != nil {
		if _, ok := sonar.ParseVerticalReference(*c.VerticalReference); !ok {
			return fmt.Errorf("unknown vertical_reference %q", *c.VerticalReference)
		}
	}

	if c.CastTieBreak != nil {
		switch *c.CastTieBreak {
		case "earliest", "location":
		default:
			return fmt.Errorf("unknown cast_tie_break %q", *c.CastTieBreak)
		}
	}

	if c.ChunkTargetBeams != nil && *c.ChunkTargetBeams <= 0 {
		return fmt.Errorf("chunk_target_beams must be positive, got %d", *c.ChunkTargetBeams)
	}

	if c.Workers != nil && *c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}

	if c.Uncertainty != nil {
		u := c.Uncertainty
		for name, v := range map[string]float64{
			"horizontal_nav_std": u.HorizontalNavStd,
			"vertical_nav_std":   u.VerticalNavStd,
			"heave_std":          u.HeaveStd,
			"roll_std_deg":       u.RollStdDeg,
			"pitch_std_deg":      u.PitchStdDeg,
			"heading_std_deg":    u.HeadingStdDeg,
			"beam_angle_std_deg": u.BeamAngleStdDeg,
			"sound_velocity_std": u.SoundVelocityStd,
			"latency_std":        u.LatencyStd,
		} {
			if v < 0 {
				return fmt.Errorf("%s must be non-negative, got %f", name, v)
			}
		}
	}

	return nil
}

// GetCRSSpec returns the configured CRS spec or the default automatic UTM
// zone selection.
func (c *ProcessingConfig) GetCRSSpec() geo.CRSSpec {
	if c.CRS == nil {
		return geo.CRSSpec{Kind: geo.CRSKindUTM, AutoZone: true}
	}
	return *c.CRS
}

// GetVerticalReference returns the configured vertical reference mode or
// the waterline default.
func (c *ProcessingConfig) GetVerticalReference() sonar.VerticalReference {
	if c.VerticalReference == nil {
		return sonar.VerticalWaterline
	}
	ref, ok := sonar.ParseVerticalReference(*c.VerticalReference)
	if !ok {
		return sonar.VerticalWaterline
	}
	return ref
}

// GetDatumSeparation returns the chart datum separation value or the default.
func (c *ProcessingConfig) GetDatumSeparation() float64 {
	if c.DatumSeparation == nil {
		return 0
	}
	return *c.DatumSeparation
}

// GetCastTieBreak returns the cast tie-break policy or the default.
func (c *ProcessingConfig) GetCastTieBreak() sonar.CastTieBreak {
	if c.CastTieBreak == nil || *c.CastTieBreak == "earliest" {
		return sonar.TieBreakEarliest
	}
	return sonar.TieBreakLocation
}

// GetChunkTargetBeams returns the chunk_target_beams value or the default.
func (c *ProcessingConfig) GetChunkTargetBeams() int {
	if c.ChunkTargetBeams == nil {
		return 65536
	}
	return *c.ChunkTargetBeams
}

// GetWorkers returns the workers value or the default.
func (c *ProcessingConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetUncertainty returns the uncertainty model magnitudes or the defaults.
func (c *ProcessingConfig) GetUncertainty() sonar.UncertaintyConfig {
	if c.Uncertainty == nil {
		return sonar.UncertaintyConfig{
			HorizontalNavStd: 0.5,
			VerticalNavStd:   0.1,
			HeaveStd:         0.05,
			RollStdDeg:       0.02,
			PitchStdDeg:      0.02,
			HeadingStdDeg:    0.05,
			BeamAngleStdDeg:  0.05,
			SoundVelocityStd: 2.0,
			LatencyStd:       0.005,
		}
	}
	return *c.Uncertainty
}

// GetExportDir returns the export_dir value, or empty to use the process
// default.
func (c *ProcessingConfig) GetExportDir() string {
	if c.ExportDir == nil {
		return ""
	}
	return *c.ExportDir
}

// Fingerprint returns a stable hash of the effective configuration, used as
// the config component of cached-result version keys. Two configs that
// resolve to the same effective values share a fingerprint.
func (c *ProcessingConfig) Fingerprint() uint64 {
	effective := struct {
		CRS          geo.CRSSpec             `json:"crs"`
		VerticalRef  string                  `json:"vertical_reference"`
		DatumSep     float64                 `json:"datum_separation"`
		CastTieBreak int                     `json:"cast_tie_break"`
		ChunkBeams   int                     `json:"chunk_target_beams"`
		Uncertainty  sonar.UncertaintyConfig `json:"uncertainty"`
	}{
		CRS:          c.GetCRSSpec(),
		VerticalRef:  c.GetVerticalReference().String(),
		DatumSep:     c.GetDatumSeparation(),
		CastTieBreak: int(c.GetCastTieBreak()),
		ChunkBeams:   c.GetChunkTargetBeams(),
		Uncertainty:  c.GetUncertainty(),
	}
	data, _ := json.Marshal(effective)
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}
