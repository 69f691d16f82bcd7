package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/scoutvc/diligence/pkg/agent"
	"github.com/scoutvc/diligence/pkg/cmd"
	"github.com/scoutvc/diligence/pkg/diligence"
	"github.com/scoutvc/diligence/pkg/log"
	"github.com/scoutvc/diligence/pkg/otelhelper"
	"github.com/scoutvc/diligence/pkg/services"
)

const defaultPort = 8080

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "diligence-api",
		Usage:                 "Submit and track startup due-diligence analyses",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Storage URL (file://, redis://, postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringSliceFlag{
				Name:     "api-keys",
				Usage:    "API keys allowed to submit analyses",
				Required: true,
				Sources:  cli.EnvVars("API_KEYS"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "model-api-url",
				Usage:   "Base URL of the model API",
				Sources: cli.EnvVars("MODEL_API_URL"),
			},
			&cli.DurationFlag{
				Name:    "result-ttl",
				Usage:   "How long finished analyses stay retrievable",
				Value:   services.DefaultResultTTL,
				Sources: cli.EnvVars("RESULT_TTL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces",
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

			logger.InfoContext(ctx, "Initializing Diligence API")

			persistence, err := cmd.NewPersistence(ctx, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			workflowOpts := []diligence.Option{diligence.WithLogger(logger)}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "diligence-api")
				if err != nil {
					return err
				}

				workflowOpts = append(workflowOpts, diligence.WithTracer(tracer))
			}

			client := agent.NewClient(command.String("model-api-url"), agent.WithLogger(logger))

			workflow, err := diligence.New(client, diligence.DefaultConfig(), workflowOpts...)
			if err != nil {
				return err
			}

			sweeper := services.NewSweeper(persistence, command.Duration("result-ttl"), logger)
			if err := sweeper.Start(); err != nil {
				return err
			}
			defer sweeper.Stop()

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				workflow,
				command.StringSlice("api-keys"),
			)
			defer api.Drain()

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("API server exited", "error", err)
		os.Exit(1)
	}
}
