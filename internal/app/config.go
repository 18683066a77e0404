package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowPath points at the definition file (.yaml, .yml or .hcl).
	WorkflowPath string

	// Event and Branch describe the trigger context of this run.
	Event  string
	Branch string

	// Workers bounds concurrent job execution; zero applies the engine
	// default.
	Workers int
	// StepTimeout bounds steps that declare no timeout of their own; zero
	// applies the engine default.
	StepTimeout time.Duration

	// SecretsFile optionally points at a YAML file of secret values that
	// overlays the CONVEYOR_SECRET_* environment.
	SecretsFile string
	// ArtifactsDir, when set, receives every stored artifact version after
	// the run.
	ArtifactsDir string
	// HistoryDB, when set, is the SQLite journal finished runs are recorded
	// to.
	HistoryDB string
	// StatusPort, when positive, serves /health and /api/run during the run.
	StatusPort int

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and applies nothing else; defaults live with
// the components that own them.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		return nil, errors.New("Workers cannot be negative")
	}
	if cfg.StepTimeout < 0 {
		return nil, errors.New("StepTimeout cannot be negative")
	}
	return &cfg, nil
}
