package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	// PipelinePath is a .hcl file or a directory of .hcl files.
	PipelinePath string

	LogFormat string
	LogLevel  string

	// Workers is the size of each named pool referenced from the pipeline.
	Workers int
}

// NewConfig validates cfg and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &cfg, nil
}
