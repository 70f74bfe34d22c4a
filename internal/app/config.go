package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ComponentsPath string // hcl component manifests (file or directory)
	PipelinePath   string // hcl pipeline definition (single file)
	OutputPath     string // compiled document destination; empty means stdout

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.ComponentsPath == "" {
		return nil, errors.New("ComponentsPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
