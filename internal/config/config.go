package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

type Config interface {
	EnvConfig
	StoreConfig
	ProviderConfig
	BatchConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

// Settings is the single configuration value handed to constructors.
// It is parsed once at startup; nothing reads the environment afterwards.
type Settings struct {
	EnvVars
	Store
	Provider
	Batch
	Security
}

var _ Config = Settings{}

// Load parses Settings from the process environment.
func Load() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("[config Load] failed to parse environment: %w", err)
	}
	return s, nil
}

// LoadWith parses Settings from the supplied variables instead of the process environment.
func LoadWith(vars map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: vars}); err != nil {
		return Settings{}, fmt.Errorf("[config LoadWith] failed to parse environment: %w", err)
	}
	return s, nil
}
