// Package main provides the FlowMesh worker, which hosts trigger sources
// and executes workflows through the scheduler.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/flowmesh/flowmesh/pkg/cmd"
	"github.com/flowmesh/flowmesh/pkg/log"
	"github.com/flowmesh/flowmesh/pkg/otelhelper"
	"github.com/flowmesh/flowmesh/pkg/scheduler"
	"github.com/flowmesh/flowmesh/pkg/services"
)

func main() {
	command := &cli.Command{
		Name:                  "flowmesh-worker",
		Usage:                 "Run triggers and execute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Redis queue name to consume execution requests from (disabled if empty)",
				Value:   "",
				Sources: cli.EnvVars("QUEUE_NAME"),
			},
			&cli.StringFlag{
				Name:    "queue-addr",
				Usage:   "Redis address for the queue trigger",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("QUEUE_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowmesh-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing FlowMesh Worker")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "flowmesh-worker"); err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
				}
			}

			registry := cmd.NewRegistry(logger)

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			manager, err := scheduler.NewManager(logger, store, eventBus, registry, scheduler.DefaultConfig())
			if err != nil {
				return err
			}

			var queueConfig map[string]any
			if queueName := command.String("queue"); queueName != "" {
				queueConfig = map[string]any{
					"queue": queueName,
					"connection": map[string]any{
						"addr": command.String("queue-addr"),
					},
				}
			}

			executions := services.NewExecution(store, manager)
			worker := NewWorker(workerID, logger, store, manager, executions, queueConfig)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
