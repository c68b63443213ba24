package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := service.NewTokenService(service.TokenConfig{
				Secret: opts.cfg.JWT.Secret,
				Issuer: opts.cfg.JWT.Issuer,
				TTL:    opts.cfg.JWT.Expiration,
			})
			token, expiresAt, err := tokens.Issue(subject, models.Role(strings.ToUpper(role)), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().StringVar(&role, "role", string(models.RoleViewer), "Role (ADMIN, SCHEDULER, VIEWER)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime (default JWT_EXPIRATION)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
