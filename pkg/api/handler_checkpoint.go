package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/checkpoint"
	"github.com/codeready-toolchain/baton/pkg/faults"
)

// checkpointStoreFor opens the per-workflow checkpoint store. Workflow
// ids with no live run and no on-disk checkpoints are rejected before
// the store can create an empty directory for them.
func (s *Server) checkpointStoreFor(workflowID string) (*checkpoint.Store, error) {
	if _, err := s.runs.Get(workflowID); err != nil {
		if !checkpointDirExists(s.cfg.Storage.CheckpointDir(), workflowID) {
			return nil, err
		}
	}
	return checkpoint.NewStore(checkpoint.Config{
		BaseDir:   s.cfg.Storage.CheckpointDir(),
		SessionID: workflowID,
	})
}

// checkpointDirExists reports whether a checkpoint directory already
// exists for the workflow. Ids that are not plain path components never
// match.
func checkpointDirExists(baseDir, workflowID string) bool {
	if workflowID == "" || workflowID != filepath.Base(workflowID) {
		return false
	}
	info, err := os.Stat(filepath.Join(baseDir, workflowID))
	return err == nil && info.IsDir()
}

// listCheckpointsHandler handles GET /api/v1/workflows/:id/checkpoints.
// Checkpoints are returned oldest first.
func (s *Server) listCheckpointsHandler(c *gin.Context) {
	workflowID := c.Param("id")

	store, err := s.checkpointStoreFor(workflowID)
	if err != nil {
		respondError(c, err)
		return
	}
	checkpoints, err := store.List()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, &CheckpointListResponse{
		WorkflowID:  workflowID,
		Checkpoints: checkpoints,
		Count:       len(checkpoints),
	})
}

// workflowScopedStore resolves the checkpoint store for direct
// checkpoint lookups. Stores are keyed by workflow, so the workflow_id
// query parameter is required.
func (s *Server) workflowScopedStore(c *gin.Context) (*checkpoint.Store, bool) {
	workflowID := c.Query("workflow_id")
	if workflowID == "" {
		respondError(c, faults.New(faults.CodeValidation, "workflow_id query parameter is required"))
		return nil, false
	}
	store, err := s.checkpointStoreFor(workflowID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return store, true
}

// getCheckpointHandler handles GET /api/v1/checkpoints/:id.
func (s *Server) getCheckpointHandler(c *gin.Context) {
	store, ok := s.workflowScopedStore(c)
	if !ok {
		return
	}
	cp, err := store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// validateCheckpointHandler handles GET /api/v1/checkpoints/:id/validate.
// Recomputes the stored integrity hash and reports whether it matches.
func (s *Server) validateCheckpointHandler(c *gin.Context) {
	store, ok := s.workflowScopedStore(c)
	if !ok {
		return
	}
	checkpointID := c.Param("id")
	valid, err := store.Validate(checkpointID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &CheckpointValidationResponse{
		CheckpointID: checkpointID,
		Valid:        valid,
	})
}
