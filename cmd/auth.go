package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"repolink/internal/credential"
)

var authFlags struct {
	file      bool
	expiresIn time.Duration
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage access tokens for private remotes",
}

var authSetCmd = &cobra.Command{
	Use:   "set <ref>",
	Short: "Store a token read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]

		fmt.Fprint(os.Stderr, "token: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token := strings.TrimSpace(line)
		if token == "" {
			return errors.New("empty token")
		}

		if authFlags.file {
			t := &oauth2.Token{AccessToken: token}
			if authFlags.expiresIn > 0 {
				t.Expiry = time.Now().Add(authFlags.expiresIn)
			}
			if err := credential.NewFileStore(tokenDir()).SetToken(ref, t); err != nil {
				return err
			}
			fmt.Printf("token %q stored in %s\n", ref, tokenDir())
			return nil
		}

		if err := credential.NewKeyringStore().Set(cmd.Context(), ref, token); err != nil {
			return fmt.Errorf("%w (use --file on machines without a keyring)", err)
		}
		fmt.Printf("token %q stored in the system keyring\n", ref)
		return nil
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete <ref>",
	Short: "Remove a stored token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]

		stores := []credential.Store{credential.NewFileStore(tokenDir()), credential.NewKeyringStore()}
		for _, s := range stores {
			if err := s.Delete(cmd.Context(), ref); err != nil && !errors.Is(err, credential.ErrNotFound) {
				return err
			}
		}

		fmt.Printf("token %q removed\n", ref)
		return nil
	},
}

func init() {
	authSetCmd.Flags().BoolVar(&authFlags.file, "file", false, "store in a token file instead of the system keyring")
	authSetCmd.Flags().DurationVar(&authFlags.expiresIn, "expires-in", 0, "token lifetime, only with --file")
	authCmd.AddCommand(authSetCmd, authDeleteCmd)
	rootCmd.AddCommand(authCmd)
}
