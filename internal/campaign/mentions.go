package campaign

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/khanasif1/twooter/internal/content"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/models"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
)

// MentionOutcome records the reply written to one mention.
type MentionOutcome struct {
	PostID  int64  `json:"post_id"`
	Author  string `json:"author,omitempty"`
	Reply   string `json:"reply,omitempty"`
	ReplyID int64  `json:"reply_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MentionReport summarizes a mention reply run.
type MentionReport struct {
	Handle   string           `json:"handle"`
	Found    int              `json:"found"`
	Replied  int              `json:"replied"`
	Failed   int              `json:"failed"`
	Outcomes []MentionOutcome `json:"outcomes"`
}

// MentionHandle returns the account searched for mentions: the configured
// handle, or the candidate's name in lower snake case.
func (r *Runner) MentionHandle() string {
	if h := strings.TrimPrefix(strings.TrimSpace(r.cfg.MentionHandle), "@"); h != "" {
		return h
	}
	return strings.ToLower(strings.Join(strings.Fields(r.cfg.Candidate), "_"))
}

// MentionReplies answers posts that mention the campaign handle with a
// generated reply carrying the original post's hashtags. Posts written by
// the bot itself are skipped.
func (r *Runner) MentionReplies(ctx context.Context) (*MentionReport, error) {
	handle := r.MentionHandle()
	if handle == "" {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "no mention handle or candidate configured", nil)
	}
	if r.generator == nil {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "mention replies need an llm provider", nil)
	}

	posts, err := r.actions.Search(ctx, "@"+handle, r.cfg.MentionLimit)
	if err != nil {
		return nil, fmt.Errorf("search mentions of @%s: %w", handle, err)
	}

	var mentions []models.Twoot
	for _, p := range posts {
		if p.ID == 0 || (r.self != "" && strings.EqualFold(p.AuthorName(), r.self)) {
			continue
		}
		mentions = append(mentions, p)
	}
	if r.cfg.MaxMentions > 0 && len(mentions) > r.cfg.MaxMentions {
		mentions = mentions[:r.cfg.MaxMentions]
	}

	report := &MentionReport{Handle: handle, Found: len(mentions)}
	r.logger.WithFields(logrus.Fields{"handle": handle, "mentions": len(mentions)}).Info("Starting mention replies")

	for i, post := range mentions {
		if i > 0 {
			if err := r.pause(ctx, r.cfg.MentionDelay); err != nil {
				return report, err
			}
		}
		out := r.replyToMention(ctx, handle, post)
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if out.Error != "" {
			report.Failed++
		} else {
			report.Replied++
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	r.logger.WithFields(logrus.Fields{"replied": report.Replied, "failed": report.Failed}).Info("Mention replies finished")
	return report, nil
}

func (r *Runner) replyToMention(ctx context.Context, handle string, post models.Twoot) MentionOutcome {
	log := r.logger.WithField("post_id", post.ID)
	out := MentionOutcome{PostID: post.ID, Author: post.AuthorName()}

	text, err := r.generator.Generate(ctx, content.MentionPrompt(post, handle, r.persona))
	if err != nil {
		log.WithError(err).Warn("Mention reply generation failed")
		metrics.RecordAction("mention_reply", "generate_error")
		out.Error = "generate: " + err.Error()
		return out
	}
	out.Reply = AppendTags(text, post.Tags, content.DefaultMaxChars)

	reply, err := r.actions.Reply(ctx, post.ID, out.Reply)
	if err != nil {
		log.WithError(err).Warn("Mention reply failed")
		out.Error = "reply: " + err.Error()
		return out
	}
	out.ReplyID = reply.ID
	log.WithField("reply_id", reply.ID).Info("Replied to mention")
	return out
}

// AppendTags adds each of tags as #name to text when it is not already
// present and the result stays within max runes. The result is then
// truncated to max.
func AppendTags(text string, tags []models.Tag, max int) string {
	out := strings.TrimSpace(text)
	for _, t := range tags {
		name := strings.TrimPrefix(strings.TrimSpace(t.Name), "#")
		if name == "" {
			continue
		}
		tag := "#" + name
		if strings.Contains(out, tag) {
			continue
		}
		if candidate := out + " " + tag; utf8.RuneCountInString(candidate) <= max {
			out = candidate
		}
	}
	return content.Truncate(out, max)
}
