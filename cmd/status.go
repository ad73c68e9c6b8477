package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"repolink/internal/repository"
	"repolink/internal/watch"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Loop    watch.Status     `json:"loop"`
			Pending int              `json:"pending"`
			Stats   repository.Stats `json:"stats"`
		}
		if err := getJSON("/status", &result); err != nil {
			return err
		}

		link := result.Loop.Link
		fmt.Printf("path:     %s\n", link.LocalPath)
		fmt.Printf("remote:   %s (%s)\n", link.RemoteURL, link.Branch)
		fmt.Printf("state:    %s\n", result.Loop.State)
		fmt.Printf("cycles:   %d (applied %d, failed %d)\n",
			result.Loop.Cycles, result.Stats.Applied, result.Stats.Failed)

		if link.Baseline != nil {
			fmt.Printf("baseline: local %s, remote %s at %s\n",
				link.Baseline.Local.Short(),
				link.Baseline.Remote.Short(),
				link.Baseline.ReconciledAt.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("baseline: none yet")
		}

		if last := result.Loop.Last; last != nil {
			fmt.Printf("last:     %s -> %s at %s\n",
				last.Result, last.Action, last.FinishedAt.Format("2006-01-02 15:04:05"))
			if last.Err != "" {
				fmt.Printf("error:    %s\n", last.Err)
			}
		}

		if result.Pending > 0 {
			fmt.Printf("pending:  %d proposal(s), see 'repolink pending'\n", result.Pending)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
