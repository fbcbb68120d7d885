package cli

import (
	"fmt"

	"github.com/harrisonrobin/taskplan/pkg/auth"
	"github.com/harrisonrobin/taskplan/pkg/google"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Google, replacing any saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := auth.Reauthorize(cmd.Context(), authOptions(cfg), google.Scopes); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", cfg.Token)
		return nil
	},
}
