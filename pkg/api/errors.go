package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/queue"
)

// respondError writes err as a structured fault body with the HTTP
// status implied by its fault code.
func respondError(c *gin.Context, err error) {
	status, classified := classify(err)
	c.JSON(status, faults.ToUserFacing(classified))
}

// abortWithFault is respondError for middleware: it stops the handler
// chain after writing the fault body.
func abortWithFault(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, faults.ToUserFacing(err))
}

// classify pairs an error with its HTTP status. Queue sentinels carry
// no fault code, so they are wrapped here to keep the body's code in
// agreement with the status line.
func classify(err error) (int, error) {
	switch {
	case errors.Is(err, queue.ErrRunNotFound):
		return http.StatusNotFound,
			faults.Wrap(faults.CodeNotFound, "workflow not found", err)
	case errors.Is(err, queue.ErrRunActive):
		return http.StatusConflict,
			faults.Wrap(faults.CodeConflict, "workflow is already active", err)
	case errors.Is(err, queue.ErrRunTerminal):
		return http.StatusConflict,
			faults.Wrap(faults.CodeConflict, "workflow already finished", err)
	case errors.Is(err, queue.ErrNoApprovalPending):
		return http.StatusConflict,
			faults.Wrap(faults.CodeConflict, "workflow has no pending approval", err)
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusServiceUnavailable, retryable(
			faults.Wrap(faults.CodeConflict, "submission queue is full", err))
	case errors.Is(err, queue.ErrPoolStopped):
		return http.StatusServiceUnavailable, retryable(
			faults.Wrap(faults.CodeConflict, "worker pool is not accepting work", err))
	}

	switch faults.CodeOf(err) {
	case faults.CodeValidation:
		return http.StatusBadRequest, err
	case faults.CodeSecurity:
		return http.StatusForbidden, err
	case faults.CodeNotFound:
		return http.StatusNotFound, err
	case faults.CodeConflict:
		return http.StatusConflict, err
	case faults.CodeUpstream:
		return http.StatusBadGateway, err
	case faults.CodeTimeout:
		return http.StatusGatewayTimeout, err
	case faults.CodeIntegrity, faults.CodeInvariant:
		return http.StatusInternalServerError, err
	}

	slog.Error("Unexpected handler error", "error", err)
	return http.StatusInternalServerError, err
}

// retryable marks capacity conditions the client may simply retry.
func retryable(f *faults.Fault) *faults.Fault {
	f.Recoverable = true
	return f
}
