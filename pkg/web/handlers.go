package web

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/services"
)

type APIHandlers struct {
	logger           *slog.Logger
	workflowService  *services.Workflow
	executionService *services.Execution
	eventBus         eventbus.EventBus
	registry         *agent.Registry
	validator        *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflowService *services.Workflow,
	executionService *services.Execution,
	eventBus eventbus.EventBus,
	registry *agent.Registry,
) *APIHandlers {
	return &APIHandlers{
		logger:           logger,
		workflowService:  workflowService,
		executionService: executionService,
		eventBus:         eventBus,
		registry:         registry,
		validator:        validator.New(),
	}
}

// Register mounts all routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/execute", h.ExecuteWorkflow)

	e := app.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Get("/:id/events", h.StreamExecutionEvents)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid_json", "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "validation_error", err.Error())
	}

	workflow, err := h.workflowService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid_json", "Invalid JSON format")
		}
	}

	execution, err := h.executionService.Start(c.Context(), c.Params("id"), req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecutionCreatedResponse{
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	opts := persistence.ListExecutionsOptions{
		WorkflowID: c.Query("workflow_id"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		opts.Status = &status
	}

	executions, err := h.executionService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.executionService.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancellation requested"})
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	opts := persistence.ListLogsOptions{
		NodeID: c.Query("node_id"),
		Level:  models.LogLevel(c.Query("level")),
	}

	logs, err := h.executionService.Logs(c.Context(), c.Params("id"), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

// StreamExecutionEvents relays the execution's event stream as server-sent
// events. The first frame is a snapshot of the current record, since the
// channel carries no history; clients reconcile against it.
func (h *APIHandlers) StreamExecutionEvents(c fiber.Ctx) error {
	executionID := c.Params("id")

	execution, err := h.executionService.Get(c.Context(), executionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	envelopes, cancel, err := h.eventBus.Subscribe(c.Context(), executionID)
	if err != nil {
		return internalError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if !writeSSE(w, 0, "snapshot", execution) {
			return
		}

		for envelope := range envelopes {
			if !writeSSE(w, envelope.Sequence, string(envelope.Type), envelope.Event) {
				return
			}

			if isTerminalEvent(envelope.Type) {
				return
			}
		}
	})
}

func isTerminalEvent(eventType events.EventType) bool {
	switch eventType {
	case events.ExecutionCompletedEvent, events.ExecutionFailedEvent, events.ExecutionCancelledEvent:
		return true
	default:
		return false
	}
}

func writeSSE(w *bufio.Writer, sequence uint64, eventType string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	frame := "id: " + strconv.FormatUint(sequence, 10) + "\nevent: " + eventType + "\ndata: " + string(data) + "\n\n"
	if _, err := w.WriteString(frame); err != nil {
		return false
	}

	return w.Flush() == nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
