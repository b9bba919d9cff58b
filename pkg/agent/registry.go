package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownAgentType is returned when a node references an agent type that
// was never registered.
var ErrUnknownAgentType = errors.New("agent type not registered")

// ConfigError reports a node config rejected by the agent type's schema.
type ConfigError struct {
	AgentType string
	Details   []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config for agent type %q: %s", e.AgentType, strings.Join(e.Details, "; "))
}

// Registry resolves agent types to executor factories. New agent types
// register a definition and factory; the scheduler never branches on type.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[string]Factory
	defs      map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]Factory),
		defs:      make(map[string]Definition),
	}
}

// Register adds an agent type. Registering the same type twice replaces the
// previous definition.
func (r *Registry) Register(def Definition, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[def.Type] = factory
	r.defs[def.Type] = def

	r.logger.Info("Registered agent type", "agent_type", def.Type)
}

// Create builds an executor for the given agent type and node config.
func (r *Registry) Create(agentType string, config map[string]any) (Executor, error) {
	r.mu.RLock()
	factory, ok := r.factories[agentType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, agentType)
	}

	return factory(config)
}

// ValidateConfig checks a node config against the agent type's JSON schema.
// Called at workflow creation so bad configs are rejected before any
// execution exists.
func (r *Registry) ValidateConfig(agentType string, config map[string]any) error {
	r.mu.RLock()
	def, ok := r.defs[agentType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgentType, agentType)
	}

	if def.Schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.Schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config for agent type %q: %w", agentType, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return &ConfigError{AgentType: agentType, Details: details}
	}

	return nil
}

// Types returns the registered agent type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}

	return types
}

// HealthCheck reports whether the registry holds at least one agent type.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.factories) == 0 {
		return "No agent types registered", false
	}

	return fmt.Sprintf("%d agent types registered", len(r.factories)), true
}
