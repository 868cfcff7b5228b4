package models

import (
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// AuthContext carries the caller identity every routed execution runs under.
// Tenant isolation is enforced against TenantID at the router boundary.
type AuthContext struct {
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Validate checks the auth context is complete and unexpired.
// Failures are security violations, not validation errors: a missing or
// expired identity must abort routing and be audited.
func (a *AuthContext) Validate(now time.Time) error {
	if a == nil {
		return faults.New(faults.CodeSecurity, "auth context is required")
	}
	if a.TenantID == "" {
		return faults.New(faults.CodeSecurity, "auth context missing tenant id")
	}
	if a.UserID == "" {
		return faults.New(faults.CodeSecurity, "auth context missing user id")
	}
	if a.SessionID == "" {
		return faults.New(faults.CodeSecurity, "auth context missing session id")
	}
	if a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
		return faults.Newf(faults.CodeSecurity,
			"auth context expired at %s", a.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}
