// Package campaign runs the bot's scripted workflows on top of the action
// façade: turning press releases into posts and engaging with trending tags.
package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/content"
	"github.com/khanasif1/twooter/internal/crawler"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/retry"
	"github.com/khanasif1/twooter/internal/twooter"

	"github.com/sirupsen/logrus"
)

// Actions is the subset of the façade the workflows use.
type Actions interface {
	CreatePost(ctx context.Context, text string, opts twooter.PostOptions) (*models.Twoot, error)
	Reply(ctx context.Context, parentID int64, text string) (*models.Twoot, error)
	Like(ctx context.Context, postID int64) (*models.ActionResult, error)
	Repost(ctx context.Context, postID int64) (*models.ActionResult, error)
	Search(ctx context.Context, query string, limit int) ([]models.Twoot, error)
	TrendingFeed(ctx context.Context, limit int) ([]models.Twoot, error)
	TrendingTags(ctx context.Context, limit int) ([]models.Tag, error)
}

// ArticleSource supplies press material.
type ArticleSource interface {
	Crawl(ctx context.Context) ([]crawler.Article, error)
}

// Runner executes campaign workflows. Generator and source may be nil when
// the corresponding workflow is not used.
type Runner struct {
	actions   Actions
	generator content.Generator
	source    ArticleSource
	persona   content.Persona
	cfg       config.CampaignConfig
	self      string
	sleep     retry.Sleeper
	now       func() time.Time
	budget    *actionBudget
	logger    *logrus.Logger
}

// defaultActionsPerHour applies when the config leaves the cap unset.
const defaultActionsPerHour = 10

// Option configures a Runner.
type Option func(*Runner)

func WithGenerator(g content.Generator) Option {
	return func(r *Runner) { r.generator = g }
}

func WithArticleSource(s ArticleSource) Option {
	return func(r *Runner) { r.source = s }
}

// WithSelf names the bot account so its own posts are never engaged with.
func WithSelf(username string) Option {
	return func(r *Runner) { r.self = strings.ToLower(strings.TrimSpace(username)) }
}

func WithSleeper(s retry.Sleeper) Option {
	return func(r *Runner) { r.sleep = s }
}

// WithClock replaces the clock behind the hourly auto-engage cap.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(actions Actions, cfg config.CampaignConfig, logger *logrus.Logger, opts ...Option) *Runner {
	r := &Runner{
		actions: actions,
		cfg:     cfg,
		persona: content.Persona{
			Candidate: strings.TrimSpace(cfg.Candidate),
			Themes:    cfg.Themes,
			Hashtags:  cfg.Hashtags,
		},
		sleep:  retry.SleepContext,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	limit := cfg.AutoEngage.MaxActionsPerHour
	if limit <= 0 {
		limit = defaultActionsPerHour
	}
	r.budget = newActionBudget(limit, r.now)
	return r
}

// pause waits d unless ctx is done; a cancelled context stops the workflow.
func (r *Runner) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return r.sleep(ctx, d)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
