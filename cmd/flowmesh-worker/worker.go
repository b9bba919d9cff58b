package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/scheduler"
	"github.com/flowmesh/flowmesh/pkg/services"
	"github.com/flowmesh/flowmesh/pkg/triggers"
	"github.com/flowmesh/flowmesh/pkg/triggers/queue"
	"github.com/flowmesh/flowmesh/pkg/triggers/schedule"
)

const shutdownTimeout = 30 * time.Second

// Worker hosts trigger sources and starts executions on their behalf. The
// scheduler manager runs in-process; triggers only decide when to start.
type Worker struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	manager     *scheduler.Manager
	executions  *services.Execution

	queueConfig map[string]any
	triggers    []triggers.Trigger
}

func NewWorker(
	id string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	manager *scheduler.Manager,
	executions *services.Execution,
	queueConfig map[string]any,
) *Worker {
	return &Worker{
		id:          id,
		logger:      logger.With("module", "worker", "worker_id", id),
		persistence: persistence,
		manager:     manager,
		executions:  executions,
		queueConfig: queueConfig,
	}
}

// Start brings up all trigger sources and blocks until a shutdown signal or
// context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.startTriggers(runCtx); err != nil {
		return err
	}

	w.logger.InfoContext(runCtx, "Worker started", "triggers", len(w.triggers))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		w.logger.InfoContext(runCtx, "Received signal, shutting down gracefully", "signal", sig)
	case <-runCtx.Done():
		w.logger.InfoContext(runCtx, "Context cancelled, shutting down")
	}

	return w.stop(cancel)
}

func (w *Worker) startTriggers(ctx context.Context) error {
	callback := w.startExecution

	scheduled, err := schedule.FromWorkflows(ctx, w.persistence, w.logger)
	if err != nil {
		return err
	}

	for _, trigger := range scheduled {
		w.triggers = append(w.triggers, trigger)
	}

	if w.queueConfig != nil {
		queueTrigger, err := queue.NewTrigger(w.queueConfig, w.logger)
		if err != nil {
			return err
		}

		w.triggers = append(w.triggers, queueTrigger)
	}

	for _, trigger := range w.triggers {
		if err := trigger.Start(ctx, callback); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) startExecution(ctx context.Context, workflowID string, triggerData map[string]any) error {
	execution, err := w.executions.Start(ctx, workflowID, triggerData)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Started execution from trigger",
		"workflow_id", workflowID,
		"execution_id", execution.ID,
	)

	return nil
}

func (w *Worker) stop(cancel context.CancelFunc) error {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	for _, trigger := range w.triggers {
		if err := trigger.Stop(stopCtx); err != nil {
			w.logger.ErrorContext(stopCtx, "Failed to stop trigger", "error", err)
		}
	}

	cancel()

	if err := w.manager.Shutdown(stopCtx); err != nil {
		w.logger.ErrorContext(stopCtx, "Failed to shut down scheduler", "error", err)

		return err
	}

	w.logger.InfoContext(stopCtx, "Worker stopped")

	return nil
}
