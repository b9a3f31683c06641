package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// ResumeRequest is the reviewer decision body.
type ResumeRequest struct {
	Decision   string `json:"decision"`
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes,omitempty"`
}

// ResumeResponse reports where the workflow landed after the decision.
type ResumeResponse struct {
	WorkflowID  string               `json:"workflow_id"`
	Status      state.Status         `json:"status"`
	Decision    checkpoint.Decision  `json:"decision"`
	ResumeToken string               `json:"resume_token"`
	NextStage   state.Stage          `json:"next_stage"`
	State       *state.WorkflowState `json:"state"`
}

func (a *API) getCheckpoint(c echo.Context) error {
	checkpointID, err := id.ParseCheckpointID(c.Param("checkpointId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid checkpoint ID: "+err.Error())
	}

	cp, err := a.eng.Checkpoints().GetCheckpoint(c.Request().Context(), checkpointID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, cp)
}

func (a *API) resumeCheckpoint(c echo.Context) error {
	checkpointID, err := id.ParseCheckpointID(c.Param("checkpointId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid checkpoint ID: "+err.Error())
	}

	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid resume request: "+err.Error())
	}
	if req.ReviewerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewer_id is required")
	}

	dec, err := checkpoint.ParseDecision(req.Decision)
	if err != nil {
		return httpError(err)
	}

	res, err := a.eng.Resume(c.Request().Context(), checkpointID, dec, req.ReviewerID, req.Notes)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, ResumeResponse{
		WorkflowID:  res.State.WorkflowID.String(),
		Status:      res.State.Status,
		Decision:    dec,
		ResumeToken: res.Checkpoint.ResumeToken.String(),
		NextStage:   res.Checkpoint.NextStage,
		State:       res.State,
	})
}

func (a *API) pendingReviews(c echo.Context) error {
	items, err := a.eng.Checkpoints().PendingReviews(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, items)
}
