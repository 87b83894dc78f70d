package main

import (
	"context"
	"fmt"
	"os"

	"github.com/litmusops/resilience-gate/experiments/gate/experiment"
	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/rollout"
	"github.com/litmusops/resilience-gate/pkg/telemetry"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

var opts experiment.Options

var rootCmd = &cobra.Command{
	Use:           "gate-runner",
	Short:         "Chaos-and-load resilience gate for progressive rollouts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runGateCmd = &cobra.Command{
	Use:   "run-gate",
	Short: "Execute the full rollout gate against the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := experiment.GateRun(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if state != rollout.StatePromoted {
			return fmt.Errorf("the rollout terminal state is %v", state)
		}
		log.Info("[Gate]: The candidate has been promoted")
		return nil
	},
}

var runScenarioCmd = &cobra.Command{
	Use:   "run-scenario",
	Short: "Execute the standalone scenario suite outside any rollout plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		passed, err := experiment.ScenarioRun(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if !passed {
			return fmt.Errorf("one or more scenario verdicts failed")
		}
		log.Info("[Suite]: Every scenario verdict passed")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "gate.yaml", "path of the gate config document")
	rootCmd.PersistentFlags().StringVar(&opts.TargetName, "target", "", "target name override")
	rootCmd.PersistentFlags().StringVar(&opts.TargetBaseURL, "target-url", "", "target base url override")
	rootCmd.PersistentFlags().StringVar(&opts.Environment, "environment", "", "environment selecting the SLO profile overrides")
	rootCmd.PersistentFlags().StringVar(&opts.PushGateway, "push-gateway", "", "prometheus push gateway url")
	rootCmd.PersistentFlags().StringVar(&opts.OutPath, "out", "", "path of the line-delimited result records")
	rootCmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "skip real fault application")

	runGateCmd.Flags().StringVar(&opts.PlanName, "plan", "", "rollout plan name, defaults to the first plan of the document")
	runScenarioCmd.Flags().StringSliceVar(&opts.Scenarios, "scenario", nil, "scenario names to run, defaults to all")
	runScenarioCmd.Flags().IntVar(&opts.Concurrency, "concurrency", 5, "load concurrency of each standalone run")

	rootCmd.AddCommand(runGateCmd, runScenarioCmd)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx := telemetry.GetTraceParentContext()

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, true, endpoint)
		if err != nil {
			log.Errorf("Unable to initialise the OTEL SDK, err: %v", err)
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Errorf("Unable to shutdown the OTEL SDK, err: %v", err)
			}
		}()
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reason, errorCode := cerrors.GetRootCauseAndErrorCode(err, types.StageSummary)
		log.Errorf("The gate run did not succeed, errorCode: %v, reason: %v", errorCode, reason)
		return 1
	}
	return 0
}
