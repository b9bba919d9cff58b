// Package schedule provides a cron-based trigger that starts executions of
// workflows carrying a "schedule" metadata entry.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/triggers"
)

// MetadataKey is the workflow metadata entry holding the cron expression.
const MetadataKey = "schedule"

type Trigger struct {
	WorkflowID string
	CronExpr   string
	Enabled    bool

	cron     *cron.Cron
	callback triggers.Callback
	logger   *slog.Logger
}

func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	workflowID, _ := config["workflow_id"].(string)
	cronExpr, _ := config["cron"].(string)

	trigger := &Trigger{
		WorkflowID: workflowID,
		CronExpr:   cronExpr,
		Enabled:    true,
		logger: logger.With(
			"module", "schedule_trigger",
			"cron", cronExpr,
			"workflow_id", workflowID,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

// FromWorkflows builds one trigger per stored workflow whose metadata carries
// a schedule entry. Workflows with an invalid expression are skipped and
// logged rather than blocking the rest.
func FromWorkflows(ctx context.Context, store persistence.Persistence, logger *slog.Logger) ([]*Trigger, error) {
	workflows, err := store.Workflows().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows for scheduling: %w", err)
	}

	scheduled := make([]*Trigger, 0)

	for _, workflow := range workflows {
		cronExpr, ok := workflow.Metadata[MetadataKey].(string)
		if !ok || cronExpr == "" {
			continue
		}

		trigger, err := NewTrigger(map[string]any{
			"workflow_id": workflow.ID,
			"cron":        cronExpr,
		}, logger)
		if err != nil {
			logger.ErrorContext(ctx, "Skipping workflow with invalid schedule",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		scheduled = append(scheduled, trigger)
	}

	return scheduled, nil
}

func (t *Trigger) Validate() error {
	if t.WorkflowID == "" {
		return errors.New("schedule trigger workflow_id is required")
	}

	if t.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	if !t.Enabled {
		t.logger.InfoContext(ctx, "ScheduleTrigger is disabled.")

		return nil
	}

	t.logger.InfoContext(ctx, "Starting ScheduleTrigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := t.cron.AddFunc(t.CronExpr, t.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job for workflow %s: %w", t.WorkflowID, err)
	}

	t.logger.InfoContext(ctx, "Added cron job for trigger", "entry_id", id)
	t.cron.Start()

	return nil
}

func (t *Trigger) run() {
	t.logger.Info("Cron job triggered")

	triggerData := map[string]any{
		"trigger":   "schedule",
		"cron":      t.CronExpr,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := t.callback(context.Background(), t.WorkflowID, triggerData); err != nil {
			t.logger.Error("Error starting execution for trigger", "error", err)
		}
	}()
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping ScheduleTrigger", "workflow_id", t.WorkflowID)

	if t.cron != nil {
		<-t.cron.Stop().Done()
	}

	return nil
}
