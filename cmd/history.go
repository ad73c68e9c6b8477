package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"repolink/internal/model"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent reconciliation cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		var records []model.CycleRecord
		if err := getJSON(fmt.Sprintf("/history?n=%d", historyN), &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, r := range records {
			status := "·"
			switch {
			case r.ErrMsg != "":
				status = "✗"
			case r.Applied:
				status = "✓"
			}

			decision := string(r.Decision)
			if decision == "" {
				decision = "-"
			}

			fmt.Printf("%s [%s] #%-5d %-13s %-21s %s\n",
				status,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Cycle,
				r.Result,
				r.Action,
				decision,
			)
			if r.ErrMsg != "" {
				fmt.Printf("  %s\n", r.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	rootCmd.AddCommand(historyCmd)
}
