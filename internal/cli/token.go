package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metalhouse/fleshrecord/internal/auth"
	"github.com/metalhouse/fleshrecord/internal/config"
	"github.com/metalhouse/fleshrecord/internal/userstore"
)

// NewTokenCommand groups API token management for user profiles.
func NewTokenCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage per-user API tokens",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "user config directory (default from USER_CONFIG_DIR)")

	generate := &cobra.Command{
		Use:   "generate <user-id>",
		Short: "Generate and store a new API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dir)
			if err != nil {
				return err
			}
			user, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if user.APIToken != "" {
				force, _ := cmd.Flags().GetBool("force")
				if !force {
					return fmt.Errorf("user %q already has an API token; use --force to replace it", args[0])
				}
			}
			token, err := auth.GenerateToken(32)
			if err != nil {
				return err
			}
			user.APIToken = token
			if err := store.Save(user); err != nil {
				return err
			}
			cmd.Printf("API token for %s:\n%s\n", args[0], token)
			return nil
		},
	}
	generate.Flags().Bool("force", false, "replace an existing token")

	set := &cobra.Command{
		Use:   "set <user-id> <token>",
		Short: "Store a given API token for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dir)
			if err != nil {
				return err
			}
			user, err := store.Get(args[0])
			if err != nil {
				return err
			}
			user.APIToken = args[1]
			if err := store.Save(user); err != nil {
				return err
			}
			cmd.Printf("API token for %s updated\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(generate)
	cmd.AddCommand(set)
	return cmd
}

func openStore(dir string) (*userstore.DirStore, error) {
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		dir = cfg.UserConfigDir
	}
	return userstore.Open(dir)
}
