package models

import (
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// WorkflowSettings is the persisted settings document governing one
// workflow run. The document accepts known keys only; values outside the
// documented ranges fail validation.
type WorkflowSettings struct {
	StylePackageCount      int  `json:"style_package_count" yaml:"style_package_count"`
	ParallelDesignerCount  int  `json:"parallel_designer_count" yaml:"parallel_designer_count"`
	EnableStyleCompetition bool `json:"enable_style_competition" yaml:"enable_style_competition"`
	MaxStyleRejections     int  `json:"max_style_rejections" yaml:"max_style_rejections"`
	ProviderTimeoutMs      int  `json:"provider_timeout_ms" yaml:"provider_timeout_ms"`
}

// DefaultWorkflowSettings returns the documented defaults.
func DefaultWorkflowSettings() WorkflowSettings {
	return WorkflowSettings{
		StylePackageCount:      1,
		ParallelDesignerCount:  1,
		EnableStyleCompetition: false,
		MaxStyleRejections:     5,
		ProviderTimeoutMs:      900_000,
	}
}

// Validate checks every value against its documented range:
// stylePackageCount in [1,10], parallelDesignerCount in [1,15],
// maxStyleRejections in [1,10], providerTimeoutMs in [60000,1800000].
func (s *WorkflowSettings) Validate() error {
	if s.StylePackageCount < 1 || s.StylePackageCount > 10 {
		return faults.Newf(faults.CodeValidation,
			"style_package_count %d outside [1,10]", s.StylePackageCount)
	}
	if s.ParallelDesignerCount < 1 || s.ParallelDesignerCount > 15 {
		return faults.Newf(faults.CodeValidation,
			"parallel_designer_count %d outside [1,15]", s.ParallelDesignerCount)
	}
	if s.MaxStyleRejections < 1 || s.MaxStyleRejections > 10 {
		return faults.Newf(faults.CodeValidation,
			"max_style_rejections %d outside [1,10]", s.MaxStyleRejections)
	}
	if s.ProviderTimeoutMs < 60_000 || s.ProviderTimeoutMs > 1_800_000 {
		return faults.Newf(faults.CodeValidation,
			"provider_timeout_ms %d outside [60000,1800000]", s.ProviderTimeoutMs)
	}
	return nil
}

// Normalize applies the documented coercion: with style competition
// disabled, the package and designer counts collapse to 1.
func (s *WorkflowSettings) Normalize() {
	if !s.EnableStyleCompetition {
		s.StylePackageCount = 1
		s.ParallelDesignerCount = 1
	}
}

// ProviderTimeout returns the per-execution provider deadline.
func (s WorkflowSettings) ProviderTimeout() time.Duration {
	return time.Duration(s.ProviderTimeoutMs) * time.Millisecond
}
