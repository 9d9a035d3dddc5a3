package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/crew/internal/store"
	"github.com/mohammad-safakhou/crew/internal/supervisor"
)

// Runner is the orchestration entry point the runs API depends on.
type Runner interface {
	ProcessWithID(ctx context.Context, runID, request string, observer supervisor.StepObserver) (supervisor.Result, error)
}

type RunRequest struct {
	Request string `json:"request"`
}

type RunsHandler struct {
	Runner Runner
	Runs   store.RunStore
	Status store.StatusStore
	Logger *log.Logger

	// Timeout bounds each background run end to end.
	Timeout time.Duration
}

func (h *RunsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/status", h.status)
}

// create accepts a request, archives a pending run, kicks off the
// orchestration in the background, and returns the run ID immediately.
func (h *RunsHandler) create(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Request == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request is required")
	}

	userID, _ := c.Get("user_id").(string)
	runID := uuid.New().String()
	now := time.Now().UTC()

	rec := store.RunRecord{
		ID:        runID,
		UserID:    userID,
		Request:   req.Request,
		Status:    store.RunStatusPending,
		StartedAt: now,
	}
	ctx := c.Request().Context()
	if err := h.Runs.CreateRun(ctx, rec); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	_ = h.Status.SetStatus(ctx, store.RunStatus{RunID: runID, Status: store.RunStatusPlanning})

	go h.execute(runID, req.Request)

	return c.JSON(http.StatusAccepted, map[string]string{"run_id": runID})
}

// execute drives one run in the background and records the outcome.
func (h *RunsHandler) execute(runID, request string) {
	timeout := h.Timeout
	if timeout == 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	observer := func(ev supervisor.StepEvent) {
		completed := make([]string, len(ev.Completed))
		for i, c := range ev.Completed {
			completed[i] = string(c)
		}
		_ = h.Status.SetStatus(ctx, store.RunStatus{
			RunID:     runID,
			Status:    store.RunStatusRunning,
			Cycle:     ev.Cycle,
			Step:      ev.Step,
			Agent:     ev.Agent,
			Completed: completed,
			Error:     ev.Error,
		})
	}

	result, err := h.Runner.ProcessWithID(ctx, runID, request, observer)

	rec := store.RunRecord{
		ID:     runID,
		Answer: result.Answer,
	}
	for _, c := range result.Plan {
		rec.Plan = append(rec.Plan, string(c))
	}
	if state, merr := json.Marshal(result.State); merr == nil {
		rec.State = state
	}

	status := store.RunStatus{RunID: runID}
	if err != nil {
		rec.Status = store.RunStatusFailed
		rec.Error = err.Error()
		status.Status = store.RunStatusFailed
		status.Error = err.Error()
		h.Logger.Printf("run %s failed: %v", runID, err)
	} else {
		rec.Status = store.RunStatusSucceeded
		status.Status = store.RunStatusSucceeded
		h.Logger.Printf("run %s succeeded in %v", runID, result.Duration)
	}
	for _, c := range result.Completed {
		status.Completed = append(status.Completed, string(c))
	}

	// Archive with a fresh context; the run context may already be done.
	archiveCtx, archiveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer archiveCancel()
	if err := h.Runs.FinishRun(archiveCtx, rec); err != nil {
		h.Logger.Printf("run %s: archive failed: %v", runID, err)
	}
	_ = h.Status.SetStatus(archiveCtx, status)
}

func (h *RunsHandler) list(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	runs, err := h.Runs.ListRuns(c.Request().Context(), userID, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *RunsHandler) get(c echo.Context) error {
	rec, err := h.Runs.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *RunsHandler) status(c echo.Context) error {
	status, err := h.Status.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, status)
}
