package cmd

import (
	"context"
	"strings"

	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/twooter"

	"github.com/spf13/cobra"
)

var postCmd = &cobra.Command{
	Use:   "post <text>",
	Short: "Publish a post",
	Example: `  twooter post "Polls open at 8am tomorrow"
  twooter post "Our plan" --embed https://example.com/plan --media img-1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetInt64("parent")
		embed, _ := cmd.Flags().GetString("embed")
		media, _ := cmd.Flags().GetStringSlice("media")

		opts := twooter.PostOptions{Media: media}
		if parent > 0 {
			opts.ParentID = &parent
		}
		if embed != "" {
			opts.Embed = &embed
		}
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.CreatePost(ctx, strings.Join(args, " "), opts)
		})
	},
}

var replyCmd = &cobra.Command{
	Use:   "reply <post-id> <text>",
	Short: "Reply to a post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.Reply(ctx, id, strings.Join(args[1:], " "))
		})
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread <text> <text>...",
	Short: "Publish a numbered thread, each part replying to the previous",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			delay, _ := cmd.Flags().GetDuration("delay")
			if !cmd.Flags().Changed("delay") {
				delay = a.cfg.Campaign.ThreadDelay
			}
			return a.client.CreateThread(ctx, args, delay)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <post-id>",
	Short: "Delete one of the bot's posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			if err := a.client.DeletePost(ctx, id); err != nil {
				return nil, err
			}
			return map[string]interface{}{"post_id": id, "status": "deleted"}, nil
		})
	},
}

var bulkLikeCmd = &cobra.Command{
	Use:   "bulk-like <post-id>...",
	Short: "Like several posts, continuing past failures",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		delay, _ := cmd.Flags().GetDuration("delay")
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.BulkLike(ctx, ids, delay), nil
		})
	},
}

// toggleCommand builds like/unlike/repost/unrepost, which differ only in the
// façade method they call.
func toggleCommand(use, short string, do func(c *twooter.Client, ctx context.Context, id int64) (*models.ActionResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <post-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
				return do(a.client, ctx, id)
			})
		},
	}
}

func init() {
	postCmd.Flags().Int64("parent", 0, "Parent post id (makes this a reply)")
	postCmd.Flags().String("embed", "", "URL to embed")
	postCmd.Flags().StringSlice("media", nil, "Media ids to attach")
	threadCmd.Flags().Duration("delay", 0, "Pause between thread parts (default TWOOTER_CAMPAIGN_THREAD_DELAY)")
	bulkLikeCmd.Flags().Duration("delay", 0, "Pause between likes")

	rootCmd.AddCommand(
		postCmd, replyCmd, threadCmd, deleteCmd, bulkLikeCmd,
		toggleCommand("like", "Like a post", (*twooter.Client).Like),
		toggleCommand("unlike", "Remove a like", (*twooter.Client).Unlike),
		toggleCommand("repost", "Repost a post", (*twooter.Client).Repost),
		toggleCommand("unrepost", "Remove a repost", (*twooter.Client).Unrepost),
	)
}
