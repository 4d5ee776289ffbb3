package cmd

import (
	"context"
	"encoding/json"

	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate the bot account",
	Long: `Authenticate the configured bot. A cached token is reused when the server
still accepts it; otherwise password login and the configured registration
paths are tried in policy order until one succeeds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, false, func(ctx context.Context, a *app) (interface{}, error) {
			return a.login(ctx)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the cached token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, false, func(ctx context.Context, a *app) (interface{}, error) {
			username := a.cfg.Bot.Username
			// restore the cached session so the server side is ended too
			a.validator.Validate(ctx, username)
			if err := a.auth.Logout(ctx, username); err != nil {
				return nil, err
			}
			return map[string]string{"username": username, "status": "logged_out"}, nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the profile behind the cached session",
	Long:  `Show the server profile for the cached token. No login is attempted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, false, func(ctx context.Context, a *app) (interface{}, error) {
			if !a.validator.Validate(ctx, a.cfg.Bot.Username) {
				return nil, apperrors.NewAppError(apperrors.CodeNotAuthenticated, "no valid cached session; run login first", nil)
			}
			profile, err := a.auth.Whoami(ctx)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(profile), nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
