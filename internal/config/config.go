// Package config holds the process-wide configuration for a typegrid
// instance. Options are read once at startup and immutable thereafter.
package config

import (
	"errors"
	"os"
)

// EnvForcePortable, when set to a non-empty value other than "0" or "false",
// forces every unit load to behave as if it requested the portable variant.
// It is the escape hatch for disabling native backends entirely.
const EnvForcePortable = "TYPEGRID_FORCE_PORTABLE"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ManifestPath points at a .hcl unit manifest file or a directory of
	// them.
	ManifestPath string

	// StrictArbitration prevents portable claims from ever winning
	// authority over a name.
	StrictArbitration bool
	// ForcePortable disables native backends; every unit loads as portable.
	ForcePortable bool

	LogFormat string
	LogLevel  string
}

// New validates a Config and applies the environment escape hatch.
func New(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}

	if forcedByEnv() {
		cfg.ForcePortable = true
	}

	return &cfg, nil
}

func forcedByEnv() bool {
	switch os.Getenv(EnvForcePortable) {
	case "", "0", "false":
		return false
	}
	return true
}
