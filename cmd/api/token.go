package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/middleware"
)

// newTokenCommand mints bearer tokens for local testing.
func newTokenCommand(cc *commandContext) *cobra.Command {
	var (
		subject string
		admin   bool
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			if subject == "" {
				return errors.New("--sub is required")
			}
			tok, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), domain.Caller{ID: subject, IsAdmin: admin}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "Artist or admin id")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
