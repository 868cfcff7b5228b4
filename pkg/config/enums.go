package config

// ProviderType defines supported LLM provider backends
type ProviderType string

const (
	// ProviderTypeAnthropic calls the Anthropic Messages API
	ProviderTypeAnthropic ProviderType = "anthropic"
	// ProviderTypeOpenAI calls the OpenAI chat completions API
	ProviderTypeOpenAI ProviderType = "openai"
)

// IsValid checks if the provider type is valid
func (t ProviderType) IsValid() bool {
	return t == ProviderTypeAnthropic || t == ProviderTypeOpenAI
}

// ExecutionMode defines how workflows run by default
type ExecutionMode string

const (
	// ExecutionModeInteractive pauses on approval requests and waits for a human
	ExecutionModeInteractive ExecutionMode = "interactive"
	// ExecutionModeAutonomous runs without interactive pauses; approvals escalate
	ExecutionModeAutonomous ExecutionMode = "autonomous"
)

// IsValid checks if the execution mode is valid
func (m ExecutionMode) IsValid() bool {
	return m == ExecutionModeInteractive || m == ExecutionModeAutonomous
}

// OutputFormat defines the CLI/log output format
type OutputFormat string

const (
	// OutputFormatText emits human-readable text
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON emits structured JSON
	OutputFormatJSON OutputFormat = "json"
)

// IsValid checks if the output format is valid
func (f OutputFormat) IsValid() bool {
	return f == OutputFormatText || f == OutputFormatJSON
}
