// Package main provides a one-shot command-line runner for due-diligence
// analyses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/scoutvc/diligence/pkg/agent"
	"github.com/scoutvc/diligence/pkg/diligence"
	"github.com/scoutvc/diligence/pkg/log"
)

func main() {
	logger := log.WithModule("cli")

	command := &cli.Command{
		Name:                  "diligence",
		Usage:                 "Run a due-diligence analysis for one company",
		ArgsUsage:             "<company name>",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Short description of what the company does",
			},
			&cli.StringFlag{
				Name:    "context",
				Aliases: []string{"c"},
				Usage:   "Deal context (round, terms, thesis)",
			},
			&cli.StringFlag{
				Name:    "model-api-url",
				Usage:   "Base URL of the model API",
				Sources: cli.EnvVars("MODEL_API_URL"),
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"o"},
				Usage:   "Write the full report to this file",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full result as JSON",
			},
			&cli.IntFlag{
				Name:    "research-concurrency",
				Usage:   "How many research agents run at once",
				Value:   diligence.DefaultConfig().ResearchConcurrency,
				Sources: cli.EnvVars("RESEARCH_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			subject := strings.TrimSpace(strings.Join(command.Args().Slice(), " "))
			if subject == "" {
				return errors.New("company name is required")
			}

			cfg := diligence.DefaultConfig()
			cfg.ResearchConcurrency = command.Int("research-concurrency")

			client := agent.NewClient(command.String("model-api-url"), agent.WithLogger(logger))

			workflow, err := diligence.New(client, cfg, diligence.WithLogger(logger))
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Analyzing %s...\n", subject)

			result, err := workflow.Run(ctx, subject, command.String("description"), command.String("context"))
			if err != nil {
				return err
			}

			if command.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			printResult(subject, result)

			if path := command.String("report"); path != "" && result.Report != "" {
				if err := os.WriteFile(path, []byte(result.Report), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}

				fmt.Printf("\nFull report written to %s\n", path)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Analysis failed", "error", err)
		os.Exit(1)
	}
}

func printResult(subject string, result diligence.Result) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 60))
	fmt.Printf("Due diligence: %s\n", subject)
	fmt.Printf("Outcome: %s\n", result.Outcome)

	if result.State.RetryCount > 0 {
		fmt.Printf("Research retries: %d\n", result.State.RetryCount)
	}

	if result.Decision != nil {
		fmt.Printf("\nRecommendation: %s (confidence %.0f%%)\n",
			strings.ToUpper(result.Decision.Recommendation), result.Decision.Confidence*100)

		printFactors("For", result.Decision.KeyFactorsFor)
		printFactors("Against", result.Decision.KeyFactorsAgainst)
		printFactors("Conditions", result.Decision.Conditions)

		if result.Decision.SummaryRationale != "" {
			fmt.Printf("\n%s\n", result.Decision.SummaryRationale)
		}
	} else {
		fmt.Println("\nNo recommendation produced.")
	}

	if len(result.State.ErrorLog) > 0 {
		fmt.Printf("\nIssues during the run:\n")

		for _, entry := range result.State.ErrorLog {
			fmt.Printf("  - %s\n", entry)
		}
	}

	fmt.Println(strings.Repeat("=", 60))
}

func printFactors(title string, factors []string) {
	if len(factors) == 0 {
		return
	}

	fmt.Printf("\n%s:\n", title)

	for _, factor := range factors {
		fmt.Printf("  - %s\n", factor)
	}
}
