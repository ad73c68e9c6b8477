package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"repolink/internal/autostart"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the autostart registration",
	RunE: func(cmd *cobra.Command, args []string) error {
		as := autostart.New()

		installed, err := as.IsInstalled(cmd.Context())
		if err != nil {
			return err
		}
		if !installed {
			fmt.Println("repolink daemon is not registered")
			return nil
		}

		if err := as.Uninstall(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("repolink daemon autostart removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
