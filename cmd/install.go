package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repolink/internal/autostart"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the watch daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config, run 'repolink init' first: %w", err)
		}

		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		as := autostart.New()
		if err := as.Install(cmd.Context(), execPath); err != nil {
			return err
		}

		fmt.Println("repolink daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
