package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// SubmitResponse is the body returned by invoice submission. When the
// workflow suspended for review, Checkpoint carries the review context.
type SubmitResponse struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     state.Status           `json:"status"`
	Suspended  bool                   `json:"suspended"`
	State      *state.WorkflowState   `json:"state"`
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint,omitempty"`
}

func (a *API) submitWorkflow(c echo.Context) error {
	var payload state.InvoicePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invoice payload: "+err.Error())
	}

	res, err := a.eng.Execute(c.Request().Context(), payload)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, SubmitResponse{
		WorkflowID: res.State.WorkflowID.String(),
		Status:     res.State.Status,
		Suspended:  res.Suspended,
		State:      res.State,
		Checkpoint: res.Checkpoint,
	})
}

func (a *API) listWorkflows(c echo.Context) error {
	opts := state.ListOpts{
		Status: state.Status(c.QueryParam("status")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	states, err := a.eng.States().ListStates(c.Request().Context(), opts)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, states)
}

func (a *API) getWorkflow(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("workflowId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow ID: "+err.Error())
	}

	st, err := a.eng.States().GetState(c.Request().Context(), workflowID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, st)
}

func (a *API) listWorkflowCheckpoints(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("workflowId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow ID: "+err.Error())
	}

	cps, err := a.eng.Checkpoints().ListWorkflowCheckpoints(c.Request().Context(), workflowID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, cps)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}

	return n
}
