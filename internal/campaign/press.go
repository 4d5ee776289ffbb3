package campaign

import (
	"context"
	"fmt"

	"github.com/khanasif1/twooter/internal/content"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/twooter"

	"github.com/sirupsen/logrus"
)

// PostOutcome is the result of turning one article into a post.
type PostOutcome struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	PostID  int64  `json:"post_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PressReport summarizes a press campaign run.
type PressReport struct {
	Articles int           `json:"articles"`
	Trending int           `json:"trending"`
	Posted   int           `json:"posted"`
	Failed   int           `json:"failed"`
	Outcomes []PostOutcome `json:"outcomes"`
}

// PressCampaign crawls press material, writes one post per article in the
// context of the trending feed and publishes each with PostDelay between
// posts. Per-article failures are reported, not returned.
func (r *Runner) PressCampaign(ctx context.Context) (*PressReport, error) {
	if r.source == nil || r.generator == nil {
		return nil, fmt.Errorf("press campaign needs an article source and a content generator")
	}

	articles, err := r.source.Crawl(ctx)
	if err != nil {
		return nil, fmt.Errorf("crawl press material: %w", err)
	}

	trending, err := r.actions.TrendingFeed(ctx, r.cfg.TrendingLimit)
	if err != nil {
		r.logger.WithError(err).Warn("Trending feed unavailable, writing without it")
		trending = nil
	}

	report := &PressReport{Articles: len(articles), Trending: len(trending)}
	r.logger.WithFields(logrus.Fields{"articles": len(articles), "trending": len(trending)}).Info("Starting press campaign")

	for i, a := range articles {
		if i > 0 {
			if err := r.pause(ctx, r.cfg.PostDelay); err != nil {
				return report, err
			}
		} else if err := ctx.Err(); err != nil {
			return report, err
		}

		out := r.postArticle(ctx, a.Title, a.Summary, a.URL, trending)
		if out.Error != "" {
			report.Failed++
		} else {
			report.Posted++
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	r.logger.WithFields(logrus.Fields{"posted": report.Posted, "failed": report.Failed}).Info("Press campaign finished")
	return report, nil
}

func (r *Runner) postArticle(ctx context.Context, title, summary, url string, trending []models.Twoot) PostOutcome {
	log := r.logger.WithField("title", title)
	out := PostOutcome{Title: title}

	prompt := content.PressPrompt(content.Article{Title: title, Summary: summary, URL: url}, trending, r.persona)
	text, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		log.WithError(err).Warn("Content generation failed, skipping article")
		metrics.RecordAction("campaign_post", "generate_error")
		out.Error = errString(err)
		return out
	}
	out.Content = text

	post, err := r.actions.CreatePost(ctx, text, twooter.PostOptions{})
	if err != nil {
		log.WithError(err).Warn("Posting failed, skipping article")
		out.Error = errString(err)
		return out
	}
	out.PostID = post.ID
	log.WithField("post_id", post.ID).Info("Article posted")
	return out
}
