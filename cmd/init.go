package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"repolink/internal/config"
)

var initFlags struct {
	path          string
	url           string
	branch        string
	credentialRef string
	interval      time.Duration
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the link configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		next := *cfg
		flags := cmd.Flags()

		if flags.Changed("path") {
			abs, err := filepath.Abs(initFlags.path)
			if err != nil {
				return fmt.Errorf("failed to resolve path: %w", err)
			}
			next.LocalPath = abs
		}
		if flags.Changed("url") {
			next.RemoteURL = initFlags.url
		}
		if flags.Changed("branch") {
			next.Branch = initFlags.branch
		}
		if flags.Changed("credential-ref") {
			next.CredentialRef = initFlags.credentialRef
		}
		if flags.Changed("interval") {
			next.Interval = initFlags.interval
		}

		if err := next.Validate(); err != nil {
			return err
		}

		path, err := config.Save(config.Dir(), &next)
		if err != nil {
			return err
		}

		fmt.Printf("config written to %s\n", path)
		if next.CredentialRef != "" {
			fmt.Printf("store the token with 'repolink auth set %s'\n", next.CredentialRef)
		}
		return nil
	},
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initFlags.path, "path", "", "local directory to link")
	f.StringVar(&initFlags.url, "url", "", "remote repository URL")
	f.StringVar(&initFlags.branch, "branch", config.Default.Branch, "remote branch")
	f.StringVar(&initFlags.credentialRef, "credential-ref", "", "name of the stored access token")
	f.DurationVar(&initFlags.interval, "interval", config.Default.Interval, "time between checks")
	rootCmd.AddCommand(initCmd)
}
