package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"repolink/internal/model"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List proposals waiting for confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		var proposals []model.Proposal
		if err := getJSON("/proposals", &proposals); err != nil {
			return err
		}

		if len(proposals) == 0 {
			fmt.Println("no pending proposals")
			return nil
		}

		for _, p := range proposals {
			fmt.Printf("%s  %-20s %-12s %s\n",
				p.ID, p.Action, p.Divergence, p.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("          %s\n", p.Rationale)
			for _, d := range p.Details {
				fmt.Printf("          %s\n", d)
			}
		}

		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(args[0], "confirm")
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(args[0], "reject")
	},
}

func decide(id, verb string) error {
	var result struct {
		Decision model.Decision `json:"decision"`
	}
	if err := postJSON(fmt.Sprintf("/proposals/%s/%s", id, verb), &result); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", id, result.Decision)
	return nil
}

func init() {
	rootCmd.AddCommand(pendingCmd, confirmCmd, rejectCmd)
}
