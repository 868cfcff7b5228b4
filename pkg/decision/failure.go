package decision

import (
	"fmt"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// AnalyzeFailure recommends how the workflow should react to a failing
// output. The ladder runs: security aborts, test failures route to repair,
// recoverable trouble retries while the budget lasts, repetition escalates.
func AnalyzeFailure(output models.AgentOutput, dctx models.DecisionContext) models.FailureAnalysis {
	if output.Error == nil {
		return models.FailureAnalysis{
			Strategy: models.StrategyRetry,
			Reason:   "no error details recorded, retrying",
		}
	}

	switch output.Error.Code {
	case models.ErrorCodeSecurityViolation:
		return models.FailureAnalysis{
			Strategy:          models.StrategyAbort,
			Reason:            fmt.Sprintf("security violation reported by %s", output.Agent),
			RequiresUserInput: true,
		}
	case models.ErrorCodeTestFailure:
		return models.FailureAnalysis{
			Strategy:       models.StrategyFix,
			Reason:         "test failures need a repair pass",
			SuggestedAgent: models.AgentBugFixer,
		}
	}

	if output.Error.Recoverable && dctx.FailureCount < 3 {
		return models.FailureAnalysis{
			Strategy: models.StrategyRetry,
			Reason:   "recoverable failure within the retry budget",
		}
	}
	if dctx.FailureCount >= 3 {
		return models.FailureAnalysis{
			Strategy:          models.StrategyEscalate,
			Reason:            "failure count exhausted the retry budget",
			RequiresUserInput: true,
		}
	}
	return models.FailureAnalysis{
		Strategy: models.StrategyRetry,
		Reason:   "unclassified failure, retrying",
	}
}
