package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Port       string `env:"PORT" envDefault:"5000"`
	AppName    string `env:"APP_NAME" envDefault:"Credential Pool"`
	DataFolder string `env:"FOLDER" envDefault:"./data"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:5000"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Env        string `env:"ENV" envDefault:"DEV"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "5000"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	if e.DataFolder == "" {
		return "./data"
	}
	return e.DataFolder
}

// GetBaseURL returns the externally visible URL of the intake server (e.g., "https://pool.example.com")
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}
