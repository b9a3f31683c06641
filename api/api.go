// Package api exposes the Payflow HTTP surface: invoice submission,
// workflow inspection, the pending review queue, and reviewer decision
// submission.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/engine"
)

// API wires the HTTP handlers over a Payflow engine.
type API struct {
	eng *engine.Engine
}

// New creates an API from a Payflow engine.
func New(eng *engine.Engine) *API {
	return &API{eng: eng}
}

// Handler returns a fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	a.RegisterRoutes(e)

	return e
}

// RegisterRoutes registers all Payflow routes on the given Echo
// instance.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", a.health)

	g := e.Group("/v1")

	g.POST("/workflows", a.submitWorkflow)
	g.GET("/workflows", a.listWorkflows)
	g.GET("/workflows/:workflowId", a.getWorkflow)
	g.GET("/workflows/:workflowId/checkpoints", a.listWorkflowCheckpoints)

	g.GET("/checkpoints/:checkpointId", a.getCheckpoint)
	g.POST("/checkpoints/:checkpointId/resume", a.resumeCheckpoint)

	g.GET("/reviews/pending", a.pendingReviews)
}

func (a *API) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// httpError maps domain errors to HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, payflow.ErrWorkflowNotFound),
		errors.Is(err, payflow.ErrCheckpointNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, payflow.ErrAlreadyReviewed),
		errors.Is(err, payflow.ErrCheckpointClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, payflow.ErrInvalidDecision),
		errors.Is(err, payflow.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
