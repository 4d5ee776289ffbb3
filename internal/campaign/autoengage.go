package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/models"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
)

const keywordReply = "Thanks for sharing about %s!"

// actionBudget allows at most limit actions per fixed one-hour window.
type actionBudget struct {
	mu     sync.Mutex
	limit  int
	used   int
	window time.Time
	now    func() time.Time
}

func newActionBudget(limit int, now func() time.Time) *actionBudget {
	return &actionBudget{limit: limit, now: now}
}

// take spends one action, reporting false when the hour's budget is gone.
func (b *actionBudget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

func (b *actionBudget) remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.limit - b.used
}

func (b *actionBudget) roll() {
	now := b.now()
	if b.window.IsZero() || now.Sub(b.window) >= time.Hour {
		b.window = now
		b.used = 0
	}
}

// AutoEngageOutcome records one action taken on a keyword match.
type AutoEngageOutcome struct {
	Keyword string              `json:"keyword"`
	PostID  int64               `json:"post_id"`
	Action  string              `json:"action"`
	Status  models.ActionStatus `json:"status,omitempty"`
	ReplyID int64               `json:"reply_id,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// AutoEngageReport summarizes one auto-engagement round.
type AutoEngageReport struct {
	Keywords  []string            `json:"keywords"`
	Actions   int                 `json:"actions"`
	Remaining int                 `json:"remaining"`
	Throttled bool                `json:"throttled"`
	Errors    []string            `json:"errors,omitempty"`
	Outcomes  []AutoEngageOutcome `json:"outcomes"`
}

// AutoEngage runs one round of keyword engagement: search each keyword, take
// the first posts and apply the configured actions to them. Every action
// attempt counts against the hourly cap shared by all rounds of this Runner.
func (r *Runner) AutoEngage(ctx context.Context) (*AutoEngageReport, error) {
	cfg := r.cfg.AutoEngage
	if len(cfg.Keywords) == 0 {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "no auto-engage keywords configured", nil)
	}
	actions := cfg.Actions
	if len(actions) == 0 {
		actions = []string{config.ActionLike}
	}

	report := &AutoEngageReport{Keywords: cfg.Keywords}
	defer func() { report.Remaining = r.budget.remaining() }()

	if r.budget.remaining() == 0 {
		r.logger.WithField("limit", r.budget.limit).Info("Hourly action limit reached, skipping round")
		report.Throttled = true
		return report, nil
	}

	for _, keyword := range cfg.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		log := r.logger.WithField("keyword", keyword)

		posts, err := r.actions.Search(ctx, keyword, cfg.SearchLimit)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.WithError(err).Warn("Keyword search failed")
			report.Errors = append(report.Errors, fmt.Sprintf("search %q: %v", keyword, err))
			continue
		}

		taken := 0
		for _, post := range posts {
			if cfg.PostsPerKeyword > 0 && taken == cfg.PostsPerKeyword {
				break
			}
			if post.ID == 0 {
				continue
			}
			taken++
			if r.self != "" && strings.EqualFold(post.AuthorName(), r.self) {
				continue
			}

			for _, action := range actions {
				if !r.budget.take() {
					log.Info("Hourly action limit reached")
					report.Throttled = true
					return report, nil
				}
				report.Outcomes = append(report.Outcomes, r.applyAction(ctx, keyword, action, post.ID))
				report.Actions++
				if err := r.pause(ctx, cfg.ActionDelay); err != nil {
					return report, err
				}
			}
		}
	}

	r.logger.WithFields(logrus.Fields{"actions": report.Actions, "keywords": len(cfg.Keywords)}).Info("Auto-engagement round finished")
	return report, nil
}

func (r *Runner) applyAction(ctx context.Context, keyword, action string, postID int64) AutoEngageOutcome {
	out := AutoEngageOutcome{Keyword: keyword, PostID: postID, Action: action}

	var (
		res *models.ActionResult
		err error
	)
	switch action {
	case config.ActionLike:
		res, err = r.actions.Like(ctx, postID)
	case config.ActionRepost:
		res, err = r.actions.Repost(ctx, postID)
	case config.ActionReply:
		var reply *models.Twoot
		reply, err = r.actions.Reply(ctx, postID, fmt.Sprintf(keywordReply, keyword))
		if err == nil {
			out.ReplyID = reply.ID
		}
	default:
		err = fmt.Errorf("unknown action %q", action)
	}

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"keyword": keyword, "post_id": postID, "action": action}).Warn("Auto-engage action failed")
		out.Error = err.Error()
		return out
	}
	if res != nil {
		out.Status = res.Status
	}
	return out
}

// AutoEngageRounds repeats AutoEngage every CheckInterval. rounds <= 0 runs
// until ctx is cancelled; the reports gathered so far are returned either way.
func (r *Runner) AutoEngageRounds(ctx context.Context, rounds int) ([]*AutoEngageReport, error) {
	var reports []*AutoEngageReport
	for i := 0; rounds <= 0 || i < rounds; i++ {
		if i > 0 {
			if err := r.pause(ctx, r.cfg.AutoEngage.CheckInterval); err != nil {
				return reports, err
			}
		}
		report, err := r.AutoEngage(ctx)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
