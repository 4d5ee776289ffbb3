package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Workflow names accepted by Loop.
const (
	WorkflowPress      = "press"
	WorkflowTrending   = "trending"
	WorkflowMentions   = "mentions"
	WorkflowAutoEngage = "auto-engage"
)

// WritesContent reports whether any of workflows needs an LLM generator.
func WritesContent(workflows []string) bool {
	for _, w := range workflows {
		if w == WorkflowPress || w == WorkflowMentions {
			return true
		}
	}
	return false
}

// RunSummary describes one cycle of the loop.
type RunSummary struct {
	Cycle      int               `json:"cycle"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Press      *PressReport      `json:"press,omitempty"`
	Engagement *EngagementReport `json:"engagement,omitempty"`
	Mentions   *MentionReport    `json:"mentions,omitempty"`
	AutoEngage *AutoEngageReport `json:"auto_engage,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
}

// Loop repeats the selected workflows every interval until its context ends.
type Loop struct {
	runner     *Runner
	workflows  []string
	interval   time.Duration
	ensureAuth func(ctx context.Context) error

	mu    sync.RWMutex
	last  *RunSummary
	cycle int
}

// NewLoop builds a loop. ensureAuth runs before every cycle and may be nil.
func NewLoop(r *Runner, workflows []string, interval time.Duration, ensureAuth func(ctx context.Context) error) *Loop {
	return &Loop{runner: r, workflows: workflows, interval: interval, ensureAuth: ensureAuth}
}

// Last returns the most recent finished cycle.
func (l *Loop) Last() (RunSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return RunSummary{}, false
	}
	return *l.last, true
}

// Run blocks until ctx is cancelled. Cycle failures are logged and retried
// on the next tick.
func (l *Loop) Run(ctx context.Context) error {
	for {
		summary := l.RunOnce(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		l.runner.logger.WithFields(logrus.Fields{
			"cycle":  summary.Cycle,
			"errors": len(summary.Errors),
			"next":   l.interval.String(),
		}).Info("Cycle complete")

		if err := l.runner.pause(ctx, l.interval); err != nil {
			return err
		}
	}
}

// RunOnce executes a single cycle and records it.
func (l *Loop) RunOnce(ctx context.Context) RunSummary {
	l.mu.Lock()
	l.cycle++
	summary := RunSummary{Cycle: l.cycle, StartedAt: time.Now().UTC()}
	l.mu.Unlock()

	if l.ensureAuth != nil {
		if err := l.ensureAuth(ctx); err != nil {
			summary.Errors = append(summary.Errors, "auth: "+err.Error())
			return l.finish(summary)
		}
	}

	for _, w := range l.workflows {
		if ctx.Err() != nil {
			break
		}
		switch w {
		case WorkflowPress:
			report, err := l.runner.PressCampaign(ctx)
			summary.Press = report
			if err != nil {
				summary.Errors = append(summary.Errors, "press: "+err.Error())
			}
		case WorkflowTrending:
			report, err := l.runner.TrendingEngagement(ctx)
			summary.Engagement = report
			if err != nil {
				summary.Errors = append(summary.Errors, "trending: "+err.Error())
			}
		case WorkflowMentions:
			report, err := l.runner.MentionReplies(ctx)
			summary.Mentions = report
			if err != nil {
				summary.Errors = append(summary.Errors, "mentions: "+err.Error())
			}
		case WorkflowAutoEngage:
			report, err := l.runner.AutoEngage(ctx)
			summary.AutoEngage = report
			if err != nil {
				summary.Errors = append(summary.Errors, "auto-engage: "+err.Error())
			}
		default:
			summary.Errors = append(summary.Errors, "unknown workflow: "+w)
		}
	}
	return l.finish(summary)
}

func (l *Loop) finish(summary RunSummary) RunSummary {
	summary.FinishedAt = time.Now().UTC()
	for _, e := range summary.Errors {
		l.runner.logger.WithField("cycle", summary.Cycle).Warn(e)
	}
	l.mu.Lock()
	l.last = &summary
	l.mu.Unlock()
	return summary
}
