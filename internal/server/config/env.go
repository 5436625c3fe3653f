package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// portEnv mirrors the PORT convention of PaaS platforms.
type portEnv struct {
	Port string `env:"PORT"`
}

// parseEnv overlays Config with the environment. Only variables that are set
// replace the current values.
func parseEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	var p portEnv
	if err := env.Parse(&p); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if p.Port != "" {
		config.HTTPAddr = ":" + p.Port
	}

	return nil
}
