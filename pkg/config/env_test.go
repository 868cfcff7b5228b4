package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearRecognizedEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIPort, EnvAPIURL, EnvAPIToken, EnvExecutionMode, EnvOutputFormat, EnvDebug} {
		t.Setenv(key, "")
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	clearRecognizedEnv(t)

	env := LoadEnv()
	assert.Equal(t, DefaultEnv(), env)
	assert.Equal(t, 8080, env.APIPort)
	assert.Equal(t, "http://localhost:8080", env.APIURL)
	assert.Empty(t, env.APIToken)
	assert.Equal(t, ExecutionModeInteractive, env.ExecutionMode)
	assert.Equal(t, OutputFormatText, env.OutputFormat)
	assert.False(t, env.Debug)
}

func TestLoadEnvRecognizedValues(t *testing.T) {
	clearRecognizedEnv(t)
	t.Setenv(EnvAPIPort, "9091")
	t.Setenv(EnvAPIURL, "https://baton.example.com")
	t.Setenv(EnvAPIToken, "secret-token")
	t.Setenv(EnvExecutionMode, "autonomous")
	t.Setenv(EnvOutputFormat, "json")
	t.Setenv(EnvDebug, "true")

	env := LoadEnv()
	assert.Equal(t, 9091, env.APIPort)
	assert.Equal(t, "https://baton.example.com", env.APIURL)
	assert.Equal(t, "secret-token", env.APIToken)
	assert.Equal(t, ExecutionModeAutonomous, env.ExecutionMode)
	assert.Equal(t, OutputFormatJSON, env.OutputFormat)
	assert.True(t, env.Debug)
}

func TestLoadEnvMalformedValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, env Env)
	}{
		{
			name: "non-numeric port", key: EnvAPIPort, value: "eighty",
			check: func(t *testing.T, env Env) { assert.Equal(t, 8080, env.APIPort) },
		},
		{
			name: "port out of range", key: EnvAPIPort, value: "70000",
			check: func(t *testing.T, env Env) { assert.Equal(t, 8080, env.APIPort) },
		},
		{
			name: "unknown execution mode", key: EnvExecutionMode, value: "yolo",
			check: func(t *testing.T, env Env) { assert.Equal(t, ExecutionModeInteractive, env.ExecutionMode) },
		},
		{
			name: "unknown output format", key: EnvOutputFormat, value: "xml",
			check: func(t *testing.T, env Env) { assert.Equal(t, OutputFormatText, env.OutputFormat) },
		},
		{
			name: "non-boolean debug", key: EnvDebug, value: "maybe",
			check: func(t *testing.T, env Env) { assert.False(t, env.Debug) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearRecognizedEnv(t)
			t.Setenv(tt.key, tt.value)
			tt.check(t, LoadEnv())
		})
	}
}
