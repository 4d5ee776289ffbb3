package cmd

import (
	"context"
	"errors"

	"github.com/khanasif1/twooter/internal/campaign"
	"github.com/khanasif1/twooter/internal/content"
	"github.com/khanasif1/twooter/internal/crawler"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/spf13/cobra"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Run a single campaign workflow",
}

var campaignPressCmd = &cobra.Command{
	Use:   "press",
	Short: "Turn crawled press releases into posts",
	Long: `Crawl TWOOTER_CRAWLER_SITE_URL for press releases, write one post per
article with the configured LLM provider using the trending feed as context,
and publish them with TWOOTER_CAMPAIGN_POST_DELAY between posts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			r, err := a.runner(ctx, true)
			if err != nil {
				return nil, err
			}
			return r.PressCampaign(ctx)
		})
	},
}

var campaignTrendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Like and repost top posts under trending hashtags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			r, err := a.runner(ctx, a.cfg.Campaign.ReplyToTrending)
			if err != nil {
				return nil, err
			}
			return r.TrendingEngagement(ctx)
		})
	},
}

var campaignMentionsCmd = &cobra.Command{
	Use:   "mentions",
	Short: "Reply to posts that mention the campaign handle",
	Long: `Search for @TWOOTER_CAMPAIGN_MENTION_HANDLE (or the candidate's name in
lower snake case), write a supportive reply to each mention with the
configured LLM provider, carry over the mention's hashtags while the reply
fits in 255 characters, and wait TWOOTER_CAMPAIGN_MENTION_DELAY between
mentions.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("max")
		handle, _ := cmd.Flags().GetString("handle")

		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			if cmd.Flags().Changed("max") {
				a.cfg.Campaign.MaxMentions = limit
			}
			if handle != "" {
				a.cfg.Campaign.MentionHandle = handle
			}
			r, err := a.runner(ctx, true)
			if err != nil {
				return nil, err
			}
			return r.MentionReplies(ctx)
		})
	},
}

var campaignAutoEngageCmd = &cobra.Command{
	Use:   "auto-engage",
	Short: "Like, repost or reply to posts matching keywords",
	Long: `Search each keyword, take the first matching posts and apply the
configured actions, at most TWOOTER_CAMPAIGN_AUTO_ENGAGE_MAX_ACTIONS_PER_HOUR
actions per hour. Rounds repeat every
TWOOTER_CAMPAIGN_AUTO_ENGAGE_CHECK_INTERVAL; --rounds 0 runs until
interrupted.`,
	Example: `  twooter campaign auto-engage --keywords ctf,flag --actions like,repost
  twooter campaign auto-engage --rounds 0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keywords, _ := cmd.Flags().GetStringSlice("keywords")
		actions, _ := cmd.Flags().GetStringSlice("actions")
		rounds, _ := cmd.Flags().GetInt("rounds")

		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			if len(keywords) > 0 {
				a.cfg.Campaign.AutoEngage.Keywords = keywords
			}
			if len(actions) > 0 {
				a.cfg.Campaign.AutoEngage.Actions = actions
			}
			if err := a.cfg.Campaign.AutoEngage.Validate(); err != nil {
				return nil, apperrors.NewAppError(apperrors.CodeBadRequest, err.Error(), err)
			}
			r, err := a.runner(ctx, false)
			if err != nil {
				return nil, err
			}
			reports, err := r.AutoEngageRounds(ctx, rounds)
			if err != nil && !errors.Is(err, context.Canceled) {
				return nil, err
			}
			return reports, nil
		})
	},
}

// runner wires the campaign workflows. The generator and crawler are only
// built when writing is needed, so engagement-only runs work without an LLM.
func (a *app) runner(ctx context.Context, writes bool) (*campaign.Runner, error) {
	opts := []campaign.Option{campaign.WithSelf(a.cfg.Bot.Username)}

	if writes {
		writer, err := content.NewFromConfig(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, campaign.WithGenerator(writer))
	}
	if a.cfg.Crawler.SiteURL != "" {
		c, err := crawler.New(&a.cfg.Crawler, a.logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, campaign.WithArticleSource(c))
	}

	return campaign.New(a.client, a.cfg.Campaign, a.logger, opts...), nil
}

func init() {
	campaignMentionsCmd.Flags().Int("max", 0, "Maximum mentions to answer (0 for all)")
	campaignMentionsCmd.Flags().String("handle", "", "Handle to search mentions of")
	campaignAutoEngageCmd.Flags().StringSlice("keywords", nil, "Keywords to search")
	campaignAutoEngageCmd.Flags().StringSlice("actions", nil, "Actions per post: like, repost, reply")
	campaignAutoEngageCmd.Flags().Int("rounds", 1, "Rounds to run (0 runs until interrupted)")

	campaignCmd.AddCommand(campaignPressCmd, campaignTrendingCmd, campaignMentionsCmd, campaignAutoEngageCmd)
	rootCmd.AddCommand(campaignCmd)
}
