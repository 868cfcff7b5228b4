// Package redact removes secrets from strings and JSON-shaped values before
// they reach checkpoints, audit records, logs, or error messages.
package redact

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Placeholder replaces every matched secret. It contains characters excluded
// from all value patterns, so redaction is idempotent.
const Placeholder = "[REDACTED]"

// pattern pairs a compiled secret regex with its replacement template.
type pattern struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// patterns is evaluated in order; block patterns run before assignment
// patterns so inner matches are not partially rewritten.
var patterns = []pattern{
	{
		name:        "private_key_block",
		re:          regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`),
		replacement: Placeholder,
	},
	{
		name:        "bearer_token",
		re:          regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{8,}=*`),
		replacement: Placeholder,
	},
	{
		name:        "anthropic_key",
		re:          regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{8,}`),
		replacement: Placeholder,
	},
	{
		name:        "connection_string",
		re:          regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s"'\[\]]+`),
		replacement: Placeholder,
	},
	{
		name:        "api_key_assignment",
		re:          regexp.MustCompile(`(?i)(api[_-]?key|apikey)(["']?\s*[:=]\s*)["']?([A-Za-z0-9_\-.]{8,})["']?`),
		replacement: "${1}${2}" + Placeholder,
	},
	{
		name:        "secret_assignment",
		re:          regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token)(["']?\s*[:=]\s*)["']?([^\s"'\[\],;]{4,})["']?`),
		replacement: "${1}${2}" + Placeholder,
	},
}

// String applies every secret pattern to s and returns the redacted result.
// Applying String to its own output returns the input unchanged.
func String(s string) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// Value deep-walks a JSON-shaped value (maps, slices, strings) and redacts
// every string it encounters. Non-string scalars pass through unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	default:
		return v
	}
}

// JSON round-trips raw through a generic unmarshal, redacts recursively, and
// re-serializes compactly. When raw is not valid JSON the bytes are treated
// as plain text.
func JSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return json.RawMessage(String(string(raw)))
	}
	out, err := json.Marshal(Value(v))
	if err != nil {
		// Marshal of a value produced by Unmarshal cannot fail; keep the
		// redacted text form as a last resort.
		return json.RawMessage(String(string(raw)))
	}
	return out
}

// Error returns the redacted message of err, or "" when err is nil. Use it
// whenever a provider or store error crosses a logging or API boundary.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Errorf builds an error whose message has been redacted. The original error
// chain is intentionally not preserved: wrapped errors may carry raw secrets
// in their own messages.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%s", String(fmt.Sprintf(format, args...)))
}

// Map redacts every string value in a flat details map. Nested values are
// walked via Value.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := Value(m).(map[string]any)
	return out
}
