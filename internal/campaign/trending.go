package campaign

import (
	"context"
	"strings"

	"github.com/khanasif1/twooter/internal/content"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/utils"

	"github.com/sirupsen/logrus"
)

// EngagementOutcome records what happened to one trending post.
type EngagementOutcome struct {
	Tag     string              `json:"tag"`
	PostID  int64               `json:"post_id"`
	Like    models.ActionStatus `json:"like,omitempty"`
	Repost  models.ActionStatus `json:"repost,omitempty"`
	ReplyID int64               `json:"reply_id,omitempty"`
	Errors  []string            `json:"errors,omitempty"`
}

// EngagementReport summarizes a trending engagement run.
type EngagementReport struct {
	Tags     []string            `json:"tags"`
	Engaged  int                 `json:"engaged"`
	Failed   int                 `json:"failed"`
	Outcomes []EngagementOutcome `json:"outcomes"`
}

// SelectTags normalizes tag names and keeps those that mention any of the
// keywords. With no keywords every tag is kept. At most limit tags are
// returned when limit is positive.
func SelectTags(tags []models.Tag, keywords []string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range tags {
		name := strings.TrimPrefix(strings.TrimSpace(t.Name), "#")
		if name == "" {
			continue
		}
		key := utils.NormalizeTag(name)
		if _, dup := seen[key]; dup {
			continue
		}
		if len(keywords) > 0 && !matchesKeyword(key, keywords) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func matchesKeyword(tag string, keywords []string) bool {
	for _, k := range keywords {
		k = utils.NormalizeTag(k)
		if k != "" && strings.Contains(tag, k) {
			return true
		}
	}
	return false
}

// TrendingEngagement likes and reposts the top posts under each trending tag,
// optionally replying with generated content. Posts written by the bot itself
// are skipped. A failure on one post never stops the run.
func (r *Runner) TrendingEngagement(ctx context.Context) (*EngagementReport, error) {
	raw, err := r.actions.TrendingTags(ctx, 0)
	if err != nil {
		return nil, err
	}
	tags := SelectTags(raw, r.cfg.TagKeywords, r.cfg.MaxTags)
	report := &EngagementReport{Tags: tags}
	r.logger.WithField("tags", tags).Info("Starting trending engagement")

	for i, tag := range tags {
		if i > 0 {
			if err := r.pause(ctx, r.cfg.PostDelay); err != nil {
				return report, err
			}
		}
		if err := r.engageTag(ctx, tag, report); err != nil {
			return report, err
		}
	}

	r.logger.WithFields(logrus.Fields{"engaged": report.Engaged, "failed": report.Failed}).Info("Trending engagement finished")
	return report, nil
}

func (r *Runner) engageTag(ctx context.Context, tag string, report *EngagementReport) error {
	log := r.logger.WithField("tag", tag)
	posts, err := r.actions.Search(ctx, "#"+tag, r.cfg.PostsPerTag)
	if err != nil {
		log.WithError(err).Warn("Search failed, skipping tag")
		return ctx.Err()
	}

	for _, post := range posts {
		if r.self != "" && strings.EqualFold(post.AuthorName(), r.self) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := r.engagePost(ctx, tag, post)
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			report.Failed++
		} else {
			report.Engaged++
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return nil
}

// engagePost returns an error only when ctx is cancelled.
func (r *Runner) engagePost(ctx context.Context, tag string, post models.Twoot) (EngagementOutcome, error) {
	log := r.logger.WithFields(logrus.Fields{"tag": tag, "post_id": post.ID})
	out := EngagementOutcome{Tag: tag, PostID: post.ID}

	if res, err := r.actions.Like(ctx, post.ID); err != nil {
		log.WithError(err).Warn("Like failed")
		out.Errors = append(out.Errors, "like: "+err.Error())
	} else {
		out.Like = res.Status
	}

	if err := r.pause(ctx, r.cfg.EngagementDelay); err != nil {
		return out, err
	}

	if res, err := r.actions.Repost(ctx, post.ID); err != nil {
		log.WithError(err).Warn("Repost failed")
		out.Errors = append(out.Errors, "repost: "+err.Error())
	} else {
		out.Repost = res.Status
	}

	if !r.cfg.ReplyToTrending || r.generator == nil {
		return out, nil
	}
	if err := r.pause(ctx, r.cfg.EngagementDelay); err != nil {
		return out, err
	}
	text, err := r.generator.Generate(ctx, content.ReplyPrompt(post, "#"+tag, r.persona))
	if err != nil {
		log.WithError(err).Warn("Reply generation failed")
		out.Errors = append(out.Errors, "generate: "+err.Error())
		return out, nil
	}
	reply, err := r.actions.Reply(ctx, post.ID, text)
	if err != nil {
		log.WithError(err).Warn("Reply failed")
		out.Errors = append(out.Errors, "reply: "+err.Error())
		return out, nil
	}
	out.ReplyID = reply.ID
	return out, nil
}
