// Package config loads the CLI configuration from a CUE file, validated
// against an embedded schema. An absent file is not an error: every field
// has a schema default, so the zero configuration is complete.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue/cuecontext"

	"whenmet/internal/device"
	"whenmet/internal/project"
)

//go:embed schema.cue
var schema string

// Config is the decoded, validated configuration.
type Config struct {
	// Database is the SQLite path for the blob store.
	Database string `json:"database"`
	// Accuracy names the fix accuracy tier: lowest, low, balanced, high,
	// or highest.
	Accuracy string `json:"accuracy"`
	// FixTimeout bounds a single location fix, as a Go duration string.
	FixTimeout string `json:"fix_timeout"`
	// MinSpan is the minimum viewport span per axis in degrees.
	MinSpan float64 `json:"min_span"`
	// Fallback is the map region shown while no pin exists.
	Fallback Fallback `json:"fallback"`
}

// Fallback mirrors project.Region in configuration form.
type Fallback struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitude_delta"`
	LongitudeDelta float64 `json:"longitude_delta"`
}

// AccuracyTier returns the decoded accuracy as a device tier.
func (c Config) AccuracyTier() device.Accuracy {
	return device.ParseAccuracy(c.Accuracy)
}

// FixTimeoutDuration returns the decoded fix timeout. The schema guarantees
// the field parses; a hand-edited value that does not falls back to 10s.
func (c Config) FixTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.FixTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// FallbackRegion returns the fallback as a viewport region.
func (c Config) FallbackRegion() project.Region {
	return project.Region{
		Latitude:       c.Fallback.Latitude,
		Longitude:      c.Fallback.Longitude,
		LatitudeDelta:  c.Fallback.LatitudeDelta,
		LongitudeDelta: c.Fallback.LongitudeDelta,
	}
}

// Default returns the configuration the embedded schema defaults to.
func Default() Config {
	cfg, err := parse(nil)
	if err != nil {
		// The embedded schema is compiled at build time; defaults always
		// decode.
		panic(fmt.Sprintf("config: embedded schema defaults invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE configuration at path. An empty path or a
// missing file yields the defaults; a malformed or out-of-schema file is an
// error.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := parse(blob)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// parse unifies the user fragment with the embedded schema and decodes the
// result. Unification is what enforces both types and value bounds: a field
// outside the schema's constraints makes the unified value bottom.
func parse(userCUE []byte) (Config, error) {
	ctx := cuecontext.New()

	val := ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return Config{}, fmt.Errorf("compiling schema: %w", err)
	}

	if len(userCUE) > 0 {
		user := ctx.CompileString(string(userCUE))
		if err := user.Err(); err != nil {
			return Config{}, fmt.Errorf("compiling: %w", err)
		}
		val = val.Unify(user)
	}

	if err := val.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating: %w", err)
	}

	var cfg Config
	if err := val.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding: %w", err)
	}
	if _, err := time.ParseDuration(cfg.FixTimeout); err != nil {
		return Config{}, fmt.Errorf("fix_timeout: %w", err)
	}
	return cfg, nil
}
