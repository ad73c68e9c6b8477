package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repolink/internal/logger"
	"repolink/internal/model"
	"repolink/internal/watch"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single reconciliation cycle in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}

		loop := s.newLoop(watch.NewTerminalConfirmer(os.Stdin, os.Stdout))

		report, err := loop.RunCycle(cmd.Context())
		if err != nil {
			return err
		}

		printReport(report)
		if report.Err != "" && report.Action != model.ActionRetry {
			return fmt.Errorf("cycle failed: %s", report.Err)
		}
		return nil
	},
}

func printReport(r model.CycleReport) {
	fmt.Printf("result:   %s\n", r.Result)
	fmt.Printf("action:   %s\n", r.Action)
	if r.Rationale != "" {
		fmt.Printf("reason:   %s\n", r.Rationale)
	}
	if r.Decision != "" {
		fmt.Printf("decision: %s\n", r.Decision)
	}
	if r.Seeded {
		fmt.Println("baseline: recorded for the first time")
	}
	if r.Applied && r.Baseline != nil {
		fmt.Printf("baseline: local %s, remote %s\n", r.Baseline.Local.Short(), r.Baseline.Remote.Short())
	}
	if r.Err != "" {
		fmt.Printf("error:    %s\n", r.Err)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
