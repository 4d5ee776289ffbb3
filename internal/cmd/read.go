package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/spf13/cobra"
)

// feedNames lists the feeds `twooter feed` accepts.
var feedNames = []string{"trending", "latest", "home", "explore"}

var getCmd = &cobra.Command{
	Use:   "get <post-id>",
	Short: "Show a single post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.GetPost(ctx, id)
		})
	},
}

var repliesCmd = &cobra.Command{
	Use:   "replies <post-id>",
	Short: "List replies to a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.Replies(ctx, id)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search posts",
	Example: `  twooter search "#transit" --limit 5`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.Search(ctx, strings.Join(args, " "), limit)
		})
	},
}

var feedCmd = &cobra.Command{
	Use:       "feed <trending|latest|home|explore>",
	Short:     "Read a feed",
	Args:      cobra.ExactArgs(1),
	ValidArgs: feedNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		at, _ := cmd.Flags().GetString("at")

		var asOf time.Time
		if at != "" {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return apperrors.NewAppErrorf(apperrors.CodeBadRequest, err, "invalid --at timestamp %q", at)
			}
			asOf = t
		}

		name := args[0]
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			switch name {
			case "trending":
				return a.client.TrendingFeed(ctx, limit)
			case "latest":
				return a.client.LatestFeed(ctx, limit, asOf)
			case "home":
				return a.client.HomeFeed(ctx, limit)
			case "explore":
				return a.client.ExploreFeed(ctx, limit)
			}
			return nil, apperrors.NewAppError(apperrors.CodeBadRequest,
				fmt.Sprintf("unknown feed %q (want one of %s)", name, strings.Join(feedNames, ", ")), nil)
		})
	},
}

var userPostsCmd = &cobra.Command{
	Use:   "user-posts <username>",
	Short: "List posts by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.UserPosts(ctx, args[0], limit)
		})
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List trending hashtags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return run(cmd, true, func(ctx context.Context, a *app) (interface{}, error) {
			return a.client.TrendingTags(ctx, limit)
		})
	},
}

func init() {
	searchCmd.Flags().Int("limit", 10, "Maximum results")
	feedCmd.Flags().Int("limit", 20, "Maximum results")
	feedCmd.Flags().String("at", "", "RFC3339 timestamp for the latest feed")
	userPostsCmd.Flags().Int("limit", 20, "Maximum results")
	tagsCmd.Flags().Int("limit", 10, "Maximum tags")

	rootCmd.AddCommand(getCmd, repliesCmd, searchCmd, feedCmd, userPostsCmd, tagsCmd)
}
