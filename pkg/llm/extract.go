package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

var (
	// fencedObjectPattern matches a JSON object inside a markdown code
	// block, with or without a language tag.
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")

	// bareObjectPattern greedily matches from the first '{' to the last
	// '}' for responses that mix prose with a single object.
	bareObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)

	// trailingCommaPattern matches a trailing comma before '}' or ']'.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSONObject pulls the JSON object out of a model response. It
// tolerates markdown code fences, surrounding prose, line comments, and
// trailing commas, and verifies the result parses before returning it.
func ExtractJSONObject(content string) (json.RawMessage, error) {
	candidates := make([]string, 0, 2)
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		candidates = append(candidates, m[1])
	}
	if m := bareObjectPattern.FindString(content); m != "" {
		candidates = append(candidates, m)
	}
	for _, candidate := range candidates {
		cleaned := cleanJSON(candidate)
		if json.Valid([]byte(cleaned)) {
			return json.RawMessage(cleaned), nil
		}
		if balanced, ok := firstBalancedObject(cleaned); ok {
			if b := cleanJSON(balanced); json.Valid([]byte(b)) {
				return json.RawMessage(b), nil
			}
		}
	}
	return nil, faults.New(faults.CodeValidation, "response contains no parseable JSON object")
}

// cleanJSON strips line comments outside string values and trailing commas.
// Models produce both even when told not to.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(cleaned, "\n"), "$1")
}

// stripLineComment removes a // comment from a line, tracking string state
// so URLs inside values survive.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

// firstBalancedObject scans for the first brace-balanced object, which
// recovers responses that append a second object or stray braces after the
// real one.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
