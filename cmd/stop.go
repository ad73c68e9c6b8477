package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/stop", nil); err != nil {
			return err
		}

		fmt.Println("stopped")
		return nil
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask the running daemon to check now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/check", nil); err != nil {
			return err
		}

		fmt.Println("check scheduled")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd, triggerCmd)
}
