// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/agents/echo"
	"github.com/flowmesh/flowmesh/pkg/agents/httpagent"
	"github.com/flowmesh/flowmesh/pkg/agents/llm"
)

// NewRegistry creates an agent registry with the built-in agent types.
func NewRegistry(logger *slog.Logger) *agent.Registry {
	registry := agent.NewRegistry(logger)

	registry.Register(echo.Definition(), echo.New)
	registry.Register(httpagent.Definition(), httpagent.New)
	registry.Register(llm.Definition(), llm.New)

	return registry
}
