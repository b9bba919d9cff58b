// Package scheduler drives workflow executions: it dispatches nodes in
// dependency order with bounded concurrency, enforces per-node timeouts and
// retries, propagates skips, and guarantees a terminal execution status in
// bounded time even under cancellation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/flowmesh/flowmesh/pkg/graph"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// nodeResult travels from a node goroutine back to the scheduler loop. All
// store writes happen on the loop; goroutines only report.
type nodeResult struct {
	index       int
	state       models.NodeState
	output      map[string]any
	errMsg      string
	attempts    int
	startedAt   time.Time
	completedAt time.Time
}

// Scheduler runs a single execution to a terminal status. It is not reusable.
type Scheduler struct {
	cfg         Config
	logger      *slog.Logger
	store       persistence.Persistence
	bus         eventbus.EventBus
	registry    *agent.Registry
	globalSlots chan struct{}

	workflow  *models.Workflow
	graph     *graph.Graph
	execution *models.Execution

	states      []models.NodeState
	outputs     map[string]map[string]any
	done        chan nodeResult
	running     int
	cancelNodes context.CancelFunc
	storeCtx    context.Context
}

// NewScheduler prepares a scheduler for one execution of a validated
// workflow. globalSlots may be nil to disable the system-wide limit.
func NewScheduler(
	logger *slog.Logger,
	store persistence.Persistence,
	bus eventbus.EventBus,
	registry *agent.Registry,
	cfg Config,
	globalSlots chan struct{},
	workflow *models.Workflow,
	g *graph.Graph,
	execution *models.Execution,
) *Scheduler {
	states := make([]models.NodeState, g.Len())
	for i := range states {
		states[i] = execution.NodeStatuses[g.Node(i).ID].State
	}

	return &Scheduler{
		cfg:         cfg,
		logger:      logger.With("execution_id", execution.ID, "workflow_id", workflow.ID),
		store:       store,
		bus:         bus,
		registry:    registry,
		globalSlots: globalSlots,
		workflow:    workflow,
		graph:       g,
		execution:   execution,
		states:      states,
		outputs:     make(map[string]map[string]any),
		done:        make(chan nodeResult, g.Len()),
	}
}

// Run drives the execution until every node is terminal or the context is
// cancelled. It always leaves the execution in a terminal status.
func (s *Scheduler) Run(ctx context.Context) error {
	tracer := otel.Tracer("flowmesh/scheduler")

	ctx, span := tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.String("flowmesh.execution.id", s.execution.ID),
		attribute.String("flowmesh.workflow.id", s.workflow.ID),
	))
	defer span.End()

	// Store writes must survive the run context so a cancelled execution
	// can still be recorded as cancelled.
	s.storeCtx = context.WithoutCancel(ctx)

	nodeCtx, cancelNodes := context.WithCancel(s.storeCtx)
	s.cancelNodes = cancelNodes

	defer cancelNodes()

	startedAt := time.Now().UTC()

	if err := s.store.Executions().UpdateStatus(s.storeCtx, s.execution.ID, models.ExecutionStatusRunning, ""); err != nil {
		return fmt.Errorf("failed to mark execution running: %w", err)
	}

	s.publish(events.NewExecutionStarted(s.execution.ID, s.workflow.ID, s.execution.TriggerData))
	s.appendLog("", models.LogLevelInfo, "execution started", nil)
	s.logger.Info("execution started", "nodes", s.graph.Len())

	for {
		s.propagateSkips()
		s.dispatchReady(nodeCtx)

		if s.allTerminal() {
			break
		}

		if s.running == 0 {
			return s.failStuck(startedAt)
		}

		select {
		case result := <-s.done:
			s.applyResult(result)
		case <-ctx.Done():
			s.finishCancelled(startedAt)

			return nil
		}
	}

	status, errMsg := s.finalStatus()

	if err := s.store.Executions().UpdateStatus(s.storeCtx, s.execution.ID, status, errMsg); err != nil {
		s.logger.Error("failed to record final execution status", "error", err)
	}

	duration := time.Since(startedAt)

	switch status {
	case models.ExecutionStatusCompleted:
		s.publish(events.NewExecutionCompleted(s.execution.ID, s.workflow.ID, duration))
		s.appendLog("", models.LogLevelInfo, "execution completed", nil)
		s.logger.Info("execution completed", "duration", duration)
	default:
		s.publish(events.NewExecutionFailed(s.execution.ID, s.workflow.ID, errMsg, duration))
		s.appendLog("", models.LogLevelError, "execution failed: "+errMsg, nil)
		s.logger.Warn("execution failed", "error", errMsg, "duration", duration)
	}

	return nil
}

// edgeResolved reports how an incoming edge stands given its source state.
// A terminal source either satisfies the edge or forecloses it for good.
func (s *Scheduler) edgeResolved(edge graph.Edge) (satisfied, unsatisfiable bool) {
	source := s.states[edge.Source]
	if !source.Terminal() {
		return false, false
	}

	switch edge.Condition {
	case models.EdgeConditionOnSuccess:
		satisfied = source == models.NodeStateCompleted
	case models.EdgeConditionOnFailure:
		satisfied = source == models.NodeStateFailed
	default: // always
		satisfied = source == models.NodeStateCompleted || source == models.NodeStateFailed
	}

	return satisfied, !satisfied
}

// propagateSkips marks nodes whose dependencies can no longer be met. A
// skipped node forecloses its own outgoing edges, so this iterates to a
// fixpoint.
func (s *Scheduler) propagateSkips() {
	for changed := true; changed; {
		changed = false

		for i := range s.states {
			if s.states[i] != models.NodeStatePending {
				continue
			}

			for _, edge := range s.graph.In(i) {
				if _, unsatisfiable := s.edgeResolved(edge); unsatisfiable {
					s.markSkipped(i, s.graph.Node(edge.Source).ID)

					changed = true

					break
				}
			}
		}
	}
}

func (s *Scheduler) markSkipped(i int, blockedBy string) {
	node := s.graph.Node(i)
	now := time.Now().UTC()

	s.states[i] = models.NodeStateSkipped
	s.setNodeStatus(i, models.NodeStatePending, &models.NodeStatus{
		State:       models.NodeStateSkipped,
		CompletedAt: &now,
	})
	s.appendLog(node.ID, models.LogLevelInfo, "node skipped", map[string]any{"blocked_by": blockedBy})
}

// dispatchReady starts every pending node whose dependencies are all
// satisfied, up to the per-execution concurrency limit.
func (s *Scheduler) dispatchReady(nodeCtx context.Context) {
	for i := range s.states {
		if s.running >= s.cfg.MaxConcurrency {
			return
		}

		if s.states[i] != models.NodeStatePending || !s.ready(i) {
			continue
		}

		s.startNode(nodeCtx, i)
	}
}

func (s *Scheduler) ready(i int) bool {
	for _, edge := range s.graph.In(i) {
		if satisfied, _ := s.edgeResolved(edge); !satisfied {
			return false
		}
	}

	return true
}

func (s *Scheduler) startNode(nodeCtx context.Context, i int) {
	node := s.graph.Node(i)
	now := time.Now().UTC()

	s.states[i] = models.NodeStateRunning
	s.running++
	s.setNodeStatus(i, models.NodeStatePending, &models.NodeStatus{
		State:     models.NodeStateRunning,
		StartedAt: &now,
	})
	s.appendLog(node.ID, models.LogLevelInfo, "node started", nil)

	input := agent.RunInput{
		ExecutionID: s.execution.ID,
		WorkflowID:  s.workflow.ID,
		Node:        node,
		TriggerData: s.execution.TriggerData,
		Outputs:     s.snapshotOutputs(),
	}

	go s.runNode(nodeCtx, i, node, input, now)
}

func (s *Scheduler) snapshotOutputs() map[string]map[string]any {
	snapshot := make(map[string]map[string]any, len(s.outputs))
	for id, output := range s.outputs {
		snapshot[id] = output
	}

	return snapshot
}

// runNode executes one node off the scheduler loop and reports through the
// buffered done channel. A late report after cancellation never blocks.
func (s *Scheduler) runNode(ctx context.Context, i int, node *models.NodeSpec, input agent.RunInput, startedAt time.Time) {
	result := nodeResult{index: i, startedAt: startedAt}

	defer func() {
		result.completedAt = time.Now().UTC()
		s.done <- result
	}()

	if s.globalSlots != nil {
		select {
		case s.globalSlots <- struct{}{}:
			defer func() { <-s.globalSlots }()
		case <-ctx.Done():
			result.state = models.NodeStateCancelled

			return
		}
	}

	tracer := otel.Tracer("flowmesh/scheduler")

	runCtx, span := tracer.Start(ctx, "node.run", trace.WithAttributes(
		attribute.String("flowmesh.execution.id", s.execution.ID),
		attribute.String("flowmesh.node.id", node.ID),
		attribute.String("flowmesh.agent.type", node.AgentType),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(runCtx, s.cfg.NodeTimeout)
	defer cancel()

	executor, err := s.registry.Create(node.AgentType, node.Config)
	if err != nil {
		result.state = models.NodeStateFailed
		result.errMsg = err.Error()

		return
	}

	var runResult *agent.Result

	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		result.attempts = attempt

		runResult, err = executor.Run(runCtx, input)
		if err == nil || !errors.Is(err, agent.ErrUnavailable) {
			break
		}

		if attempt == s.cfg.RetryAttempts {
			err = &ExecutorUnavailableError{NodeID: node.ID, Attempts: attempt, Err: err}

			break
		}

		select {
		case <-time.After(s.cfg.RetryBaseDelay << (attempt - 1)):
		case <-runCtx.Done():
			err = runCtx.Err()
		}

		if runCtx.Err() != nil {
			break
		}
	}

	switch {
	case err == nil:
		result.state = models.NodeStateCompleted
		if runResult != nil {
			result.output = runResult.Output
		}
	case ctx.Err() != nil:
		// Execution-level cancellation, not a node fault.
		result.state = models.NodeStateCancelled
	case errors.Is(err, context.DeadlineExceeded):
		result.state = models.NodeStateFailed
		result.errMsg = (&NodeTimeoutError{NodeID: node.ID, Timeout: s.cfg.NodeTimeout}).Error()
	default:
		result.state = models.NodeStateFailed
		result.errMsg = err.Error()
	}
}

func (s *Scheduler) applyResult(result nodeResult) {
	s.running--

	if s.states[result.index] != models.NodeStateRunning {
		return
	}

	node := s.graph.Node(result.index)

	s.states[result.index] = result.state
	s.setNodeStatus(result.index, models.NodeStateRunning, &models.NodeStatus{
		State:       result.state,
		StartedAt:   &result.startedAt,
		CompletedAt: &result.completedAt,
		Output:      result.output,
		Error:       result.errMsg,
		Attempts:    result.attempts,
	})

	switch result.state {
	case models.NodeStateCompleted:
		s.outputs[node.ID] = result.output

		s.appendLog(node.ID, models.LogLevelInfo, "node completed", nil)
	case models.NodeStateFailed:
		s.appendLog(node.ID, models.LogLevelError, "node failed: "+result.errMsg, map[string]any{"attempts": result.attempts})
		s.logger.Warn("node failed", "node_id", node.ID, "error", result.errMsg, "attempts", result.attempts)
	default:
		s.appendLog(node.ID, models.LogLevelWarn, "node cancelled", nil)
	}
}

// finishCancelled stops dispatching, signals in-flight nodes and waits up to
// the hard-stop grace for acknowledgements. Whatever does not report in time
// is force-marked cancelled so the execution still terminates.
func (s *Scheduler) finishCancelled(startedAt time.Time) {
	s.cancelNodes()

	deadline := time.NewTimer(s.cfg.HardStopGrace)
	defer deadline.Stop()

	for s.running > 0 {
		select {
		case result := <-s.done:
			// Acknowledged stops are recorded with whatever outcome the
			// node reported.
			s.applyResult(result)
		case <-deadline.C:
			s.forceCancelRunning()
		}
	}

	now := time.Now().UTC()

	for i := range s.states {
		if s.states[i] == models.NodeStatePending {
			s.states[i] = models.NodeStateCancelled
			s.setNodeStatus(i, models.NodeStatePending, &models.NodeStatus{
				State:       models.NodeStateCancelled,
				CompletedAt: &now,
			})
		}
	}

	if err := s.store.Executions().UpdateStatus(s.storeCtx, s.execution.ID, models.ExecutionStatusCancelled, ""); err != nil {
		s.logger.Error("failed to record cancelled execution status", "error", err)
	}

	duration := time.Since(startedAt)

	s.publish(events.NewExecutionCancelled(s.execution.ID, s.workflow.ID, "cancel requested", duration))
	s.appendLog("", models.LogLevelWarn, "execution cancelled", nil)
	s.logger.Info("execution cancelled", "duration", duration)
}

// forceCancelRunning marks all still-running nodes cancelled without waiting
// for their goroutines. The done channel is buffered, so late reports are
// received and discarded by applyResult.
func (s *Scheduler) forceCancelRunning() {
	now := time.Now().UTC()

	for i := range s.states {
		if s.states[i] != models.NodeStateRunning {
			continue
		}

		node := s.graph.Node(i)

		s.states[i] = models.NodeStateCancelled
		s.running--
		s.setNodeStatus(i, models.NodeStateRunning, &models.NodeStatus{
			State:       models.NodeStateCancelled,
			CompletedAt: &now,
		})
		s.appendLog(node.ID, models.LogLevelWarn, "node force-cancelled after grace period", nil)
		s.logger.Warn("node did not acknowledge cancellation", "node_id", node.ID)
	}
}

// failStuck handles the invariant violation of a non-terminal graph with an
// empty ready set and nothing running.
func (s *Scheduler) failStuck(startedAt time.Time) error {
	var pending []string

	for i := range s.states {
		if s.states[i] == models.NodeStatePending {
			pending = append(pending, s.graph.Node(i).ID)
		}
	}

	stuck := &GraphStuckError{ExecutionID: s.execution.ID, Pending: pending}

	if err := s.store.Executions().UpdateStatus(s.storeCtx, s.execution.ID, models.ExecutionStatusFailed, stuck.Error()); err != nil {
		s.logger.Error("failed to record stuck execution status", "error", err)
	}

	s.publish(events.NewExecutionFailed(s.execution.ID, s.workflow.ID, stuck.Error(), time.Since(startedAt)))
	s.appendLog("", models.LogLevelError, stuck.Error(), nil)
	s.logger.Error("graph stuck, force-failing execution", "pending", pending)

	return stuck
}

func (s *Scheduler) allTerminal() bool {
	for _, state := range s.states {
		if !state.Terminal() {
			return false
		}
	}

	return true
}

// finalStatus applies the failure-absorption policy: the execution fails iff
// some failed node has no on_failure dependent that itself completed.
func (s *Scheduler) finalStatus() (models.ExecutionStatus, string) {
	var unabsorbed []string

	for i := range s.states {
		if s.states[i] != models.NodeStateFailed {
			continue
		}

		absorbed := false

		for _, edge := range s.graph.Out(i) {
			if edge.Condition == models.EdgeConditionOnFailure && s.states[edge.Target] == models.NodeStateCompleted {
				absorbed = true

				break
			}
		}

		if !absorbed {
			unabsorbed = append(unabsorbed, s.graph.Node(i).ID)
		}
	}

	if len(unabsorbed) > 0 {
		return models.ExecutionStatusFailed, fmt.Sprintf("node %s failed without a completed on_failure handler", unabsorbed[0])
	}

	return models.ExecutionStatusCompleted, ""
}

// setNodeStatus persists a node transition and emits the matching event.
// Persistence failures are logged and do not stop the run; the next
// transition will retry the write path.
func (s *Scheduler) setNodeStatus(i int, previous models.NodeState, status *models.NodeStatus) {
	node := s.graph.Node(i)

	if err := s.store.Executions().UpdateNodeStatus(s.storeCtx, s.execution.ID, node.ID, status); err != nil {
		s.logger.Error("failed to persist node status", "node_id", node.ID, "state", status.State, "error", err)
	}

	s.execution.NodeStatuses[node.ID] = status
	s.publish(events.NewNodeStatusChanged(s.execution.ID, s.workflow.ID, node.ID, previous, status))
}

func (s *Scheduler) publish(event events.Event) {
	if err := s.bus.Publish(s.storeCtx, s.execution.ID, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (s *Scheduler) appendLog(nodeID string, level models.LogLevel, message string, metadata map[string]any) {
	entry := &models.LogEntry{
		ID:          uuid.New().String(),
		ExecutionID: s.execution.ID,
		NodeID:      nodeID,
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Metadata:    metadata,
	}

	if err := s.store.Logs().Append(s.storeCtx, entry); err != nil {
		s.logger.Warn("failed to append log entry", "error", err)
	}

	s.publish(events.NewExecutionLog(s.execution.ID, s.workflow.ID, entry))
}
