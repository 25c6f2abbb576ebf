package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
	"github.com/tailored-agentic-units/backlog/service"
	"github.com/tailored-agentic-units/backlog/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

const defaultListLimit = 50

// Handlers serves the HTTP API over one Service.
type Handlers struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewHandlers creates handlers for svc. A nil logger uses slog.Default.
func NewHandlers(svc *service.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger}
}

// HandleSubmit handles POST /v1/tasks.
//
// Without ?wait=true the run starts in the background and the response is
// 202 with the task id. With it, the run completes first and the response is
// 200 with the task record.
func (h *Handlers) HandleSubmit(c *gin.Context) {
	logger := h.logger.With("handler", "HandleSubmit")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	sub := workflows.Submission{TaskID: req.TaskID, Input: req.Input}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		final, err := h.svc.Submit(c.Request.Context(), sub)
		if err != nil {
			h.fail(c, logger, err)
			return
		}
		logger.Info("Task finished", "task_id", final.TaskID(), "status", final.Status())
		c.JSON(http.StatusOK, store.NewRecord(final, final.Trace(), time.Now()))
		return
	}

	id, err := h.svc.SubmitAsync(c.Request.Context(), sub)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	logger.Info("Task accepted", "task_id", id)
	c.Header("Location", "/v1/tasks/"+id)
	c.JSON(http.StatusAccepted, SubmitResponse{
		TaskID: id,
		Status: string(state.StatusExecuting),
	})
}

// HandleGet handles GET /v1/tasks/:id.
func (h *Handlers) HandleGet(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, h.logger.With("handler", "HandleGet"), err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleList handles GET /v1/tasks?limit=N.
func (h *Handlers) HandleList(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a non-negative integer",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	records, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, h.logger.With("handler", "HandleList"), err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Tasks: records, Count: len(records)})
}

// HandleGraph handles GET /v1/graph.
func (h *Handlers) HandleGraph(c *gin.Context) {
	g := h.svc.Graph()
	c.JSON(http.StatusOK, GraphResponse{
		Name:   g.Name(),
		Entry:  g.Entry(),
		Exit:   g.Exit(),
		Order:  g.Order(),
		Stages: g.Stages(),
		Nodes:  g.Definition().Nodes,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		Version:      Version,
		Capabilities: h.svc.Capabilities(),
	})
}

func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// classify maps service errors to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidSubmission), errors.Is(err, store.ErrEmptyTaskID):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrDuplicateTask):
		return http.StatusConflict, "DUPLICATE_TASK"
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
