package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/khanasif1/twooter/internal/campaign"
	"github.com/khanasif1/twooter/internal/routes"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot continuously with a status server",
	Long: `Authenticate, then repeat the selected campaign workflows every
TWOOTER_CAMPAIGN_INTERVAL until interrupted. A status server exposes
/healthz, /readyz, /status, /version and /metrics on
TWOOTER_OBSERVABILITY_STATUS_ADDRESS.`,
	Example: `  twooter run --workflows trending
  twooter run --workflows press,trending --once
  twooter run --workflows mentions,auto-engage`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workflows, _ := cmd.Flags().GetStringSlice("workflows")
		once, _ := cmd.Flags().GetBool("once")

		return run(cmd, false, func(ctx context.Context, a *app) (interface{}, error) {
			writes := a.cfg.Campaign.ReplyToTrending || campaign.WritesContent(workflows)
			r, err := a.runner(ctx, writes)
			if err != nil {
				return nil, err
			}

			// re-authenticate only when the session was lost
			ensureAuth := func(ctx context.Context) error {
				if a.session.IsAuthenticated() {
					return nil
				}
				_, err := a.login(ctx)
				return err
			}
			loop := campaign.NewLoop(r, workflows, a.cfg.Campaign.Interval, ensureAuth)

			if once {
				return loop.RunOnce(ctx), nil
			}

			stop := a.serveStatus(loop)
			defer stop()

			a.logger.WithFields(logrus.Fields{
				"workflows": workflows,
				"interval":  a.cfg.Campaign.Interval.String(),
			}).Info("Bot loop started")

			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return nil, err
			}
			a.logger.Info("Gracefully shutting down...")
			return nil, nil
		})
	},
}

// serveStatus starts the status server in the background and returns its
// shutdown func.
func (a *app) serveStatus(loop *campaign.Loop) func() {
	addr := a.cfg.Observability.StatusAddress
	if addr == "" {
		return func() {}
	}

	server := routes.NewApp(a.logger)
	routes.Setup(server, a.session, loop)

	go func() {
		a.logger.WithField("address", addr).Info("Starting status server")
		if err := server.Listen(addr); err != nil {
			a.logger.WithError(err).Error("Status server failed")
		}
	}()

	return func() {
		if err := server.ShutdownWithTimeout(5 * time.Second); err != nil {
			a.logger.WithError(err).Error("Status server shutdown failed")
		}
	}
}

func init() {
	runCmd.Flags().StringSlice("workflows", []string{campaign.WorkflowTrending}, "Workflows per cycle: press, trending, mentions, auto-engage")
	runCmd.Flags().Bool("once", false, "Run a single cycle and print its summary")
	rootCmd.AddCommand(runCmd)
}
