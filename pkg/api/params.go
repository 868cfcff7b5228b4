package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// parseTimeParam reads an optional RFC3339 query parameter. The second
// return is false when the value was present but malformed; the fault
// response has already been written in that case.
func parseTimeParam(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(c, faults.Newf(faults.CodeValidation,
			"%s must be RFC3339, got %q", name, raw))
		return nil, false
	}
	return &t, true
}

// parseIntParam reads an optional integer query parameter, applying
// fallback when absent. Values below min or above max are rejected.
func parseIntParam(c *gin.Context, name string, fallback, min, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		respondError(c, faults.Newf(faults.CodeValidation,
			"%s must be an integer in [%d,%d], got %q", name, min, max, raw))
		return 0, false
	}
	return n, true
}

// splitParam splits a comma-separated query value, dropping empty
// segments.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
