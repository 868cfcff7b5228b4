package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Environment variable names recognized at startup. Unknown variables are
// ignored; malformed values warn once and fall back to their defaults.
const (
	EnvAPIPort       = "BATON_API_PORT"
	EnvAPIURL        = "BATON_API_URL"
	EnvAPIToken      = "BATON_API_TOKEN" //nolint:gosec // env var name, not a credential
	EnvExecutionMode = "BATON_EXECUTION_MODE"
	EnvOutputFormat  = "BATON_OUTPUT_FORMAT"
	EnvDebug         = "BATON_DEBUG"
)

// Env is the runtime posture taken from the environment.
type Env struct {
	APIPort       int
	APIURL        string
	APIToken      string // never logged
	ExecutionMode ExecutionMode
	OutputFormat  OutputFormat
	Debug         bool
}

// DefaultEnv returns the posture used when nothing is set.
func DefaultEnv() Env {
	return Env{
		APIPort:       8080,
		APIURL:        "http://localhost:8080",
		ExecutionMode: ExecutionModeInteractive,
		OutputFormat:  OutputFormatText,
	}
}

// LoadEnv reads the recognized variables, warning once per malformed
// value and keeping the default for it.
func LoadEnv() Env {
	env := DefaultEnv()

	if raw := os.Getenv(EnvAPIPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			slog.Warn("Malformed environment value, using default",
				"variable", EnvAPIPort, "value", raw, "default", env.APIPort)
		} else {
			env.APIPort = port
		}
	}

	if raw := os.Getenv(EnvAPIURL); raw != "" {
		env.APIURL = raw
	}

	env.APIToken = os.Getenv(EnvAPIToken)

	if raw := os.Getenv(EnvExecutionMode); raw != "" {
		mode := ExecutionMode(raw)
		if !mode.IsValid() {
			slog.Warn("Malformed environment value, using default",
				"variable", EnvExecutionMode, "value", raw, "default", env.ExecutionMode)
		} else {
			env.ExecutionMode = mode
		}
	}

	if raw := os.Getenv(EnvOutputFormat); raw != "" {
		format := OutputFormat(raw)
		if !format.IsValid() {
			slog.Warn("Malformed environment value, using default",
				"variable", EnvOutputFormat, "value", raw, "default", env.OutputFormat)
		} else {
			env.OutputFormat = format
		}
	}

	if raw := os.Getenv(EnvDebug); raw != "" {
		debug, err := strconv.ParseBool(raw)
		if err != nil {
			slog.Warn("Malformed environment value, using default",
				"variable", EnvDebug, "value", raw, "default", env.Debug)
		} else {
			env.Debug = debug
		}
	}

	return env
}
