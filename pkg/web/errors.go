package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/graph"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

func badRequest(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and validation errors to RFC 7807 problems.
func handleServiceError(c fiber.Ctx, err error) error {
	var (
		danglingErr    *graph.DanglingEdgeError
		cycleErr       *graph.CycleError
		unreachableErr *graph.UnreachableNodeError
		duplicateErr   *graph.DuplicateNodeError
		emptyErr       *graph.EmptyWorkflowError
		conditionErr   *graph.InvalidConditionError
		configErr      *agent.ConfigError
	)

	switch {
	case errors.As(err, &danglingErr):
		return badRequest(c, "dangling_edge", err.Error())
	case errors.As(err, &cycleErr):
		return badRequest(c, "cycle", err.Error())
	case errors.As(err, &unreachableErr):
		return badRequest(c, "unreachable_node", err.Error())
	case errors.As(err, &duplicateErr):
		return badRequest(c, "duplicate_node", err.Error())
	case errors.As(err, &emptyErr):
		return badRequest(c, "empty_workflow", err.Error())
	case errors.As(err, &conditionErr):
		return badRequest(c, "invalid_condition", err.Error())
	case errors.As(err, &configErr):
		return badRequest(c, "invalid_node_config", err.Error())
	case errors.Is(err, agent.ErrUnknownAgentType):
		return badRequest(c, "unknown_agent_type", err.Error())
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")
	default:
		return internalError(c, err)
	}
}
