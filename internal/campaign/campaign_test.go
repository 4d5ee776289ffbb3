package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/crawler"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/twooter"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeActions struct {
	calls    []string
	nextID   int64
	trending []models.Twoot
	tags     []models.Tag
	search   map[string][]models.Twoot

	trendingErr error
	postErr     error
	likeErr     map[int64]error
	searchQs    []string
	searchErr   map[string]error
	posted      []string
	replies     map[int64]string
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		nextID:  100,
		search:  map[string][]models.Twoot{},
		likeErr: map[int64]error{},
		replies: map[int64]string{},
	}
}

func (f *fakeActions) CreatePost(_ context.Context, text string, _ twooter.PostOptions) (*models.Twoot, error) {
	f.calls = append(f.calls, "post")
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.nextID++
	f.posted = append(f.posted, text)
	return &models.Twoot{ID: f.nextID, Content: text}, nil
}

func (f *fakeActions) Reply(_ context.Context, parentID int64, text string) (*models.Twoot, error) {
	f.calls = append(f.calls, "reply")
	f.nextID++
	f.replies[parentID] = text
	return &models.Twoot{ID: f.nextID, Content: text, ParentID: &parentID}, nil
}

func (f *fakeActions) Like(_ context.Context, id int64) (*models.ActionResult, error) {
	f.calls = append(f.calls, "like")
	if err := f.likeErr[id]; err != nil {
		return nil, err
	}
	return &models.ActionResult{PostID: id, Status: models.StatusLiked}, nil
}

func (f *fakeActions) Repost(_ context.Context, id int64) (*models.ActionResult, error) {
	f.calls = append(f.calls, "repost")
	return &models.ActionResult{PostID: id, Status: models.StatusAlreadyReposted, NoOp: true}, nil
}

func (f *fakeActions) Search(_ context.Context, query string, _ int) ([]models.Twoot, error) {
	f.calls = append(f.calls, "search")
	f.searchQs = append(f.searchQs, query)
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.search[query], nil
}

func (f *fakeActions) TrendingFeed(context.Context, int) ([]models.Twoot, error) {
	f.calls = append(f.calls, "trending")
	return f.trending, f.trendingErr
}

func (f *fakeActions) TrendingTags(context.Context, int) ([]models.Tag, error) {
	f.calls = append(f.calls, "tags")
	return f.tags, nil
}

type fakeSource struct {
	articles []crawler.Article
	err      error
}

func (s fakeSource) Crawl(context.Context) ([]crawler.Article, error) { return s.articles, s.err }

type fakeGenerator struct {
	prompts []string
	fail    map[int]error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if err := g.fail[len(g.prompts)]; err != nil {
		return "", err
	}
	return "generated " + string(rune('A'+len(g.prompts)-1)), nil
}

type sleepLog struct{ delays []time.Duration }

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func author(name string) json.RawMessage {
	return json.RawMessage(`{"username":"` + name + `"}`)
}

func baseConfig() config.CampaignConfig {
	return config.CampaignConfig{
		PostDelay:       15 * time.Second,
		EngagementDelay: 2 * time.Second,
		MaxTags:         3,
		PostsPerTag:     3,
		TrendingLimit:   5,
		Candidate:       "Victor Hawthorne",
	}
}

func TestPressCampaign(t *testing.T) {
	actions := newFakeActions()
	actions.trending = []models.Twoot{{ID: 1, Content: "Transit is late again", Author: author("rider")}}
	gen := &fakeGenerator{fail: map[int]error{2: apperrors.NewAppError(apperrors.CodeRateLimitExhausted, "slow", nil)}}
	src := fakeSource{articles: []crawler.Article{
		{Title: "Plan for schools", Summary: "Teachers first."},
		{Title: "Transit", Summary: "More buses."},
		{Title: "Parks", Summary: "Green spaces."},
	}}
	sl := &sleepLog{}
	r := New(actions, baseConfig(), quietLogger(), WithGenerator(gen), WithArticleSource(src), WithSleeper(sl.sleep))

	report, err := r.PressCampaign(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.Articles)
	assert.Equal(t, 1, report.Trending)
	assert.Equal(t, 2, report.Posted)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Outcomes, 3)
	assert.NotEmpty(t, report.Outcomes[1].Error)
	assert.Equal(t, []string{"generated A", "generated C"}, actions.posted)
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second}, sl.delays)

	require.Len(t, gen.prompts, 3)
	assert.True(t, strings.HasPrefix(gen.prompts[0], "Victor Hawthorne Press Release:"))
	assert.Contains(t, gen.prompts[0], "@rider: Transit is late again")
}

func TestPressCampaign_TrendingFailureIsNotFatal(t *testing.T) {
	actions := newFakeActions()
	actions.trendingErr = errors.New("feed down")
	gen := &fakeGenerator{}
	src := fakeSource{articles: []crawler.Article{{Title: "Plan for schools"}}}
	r := New(actions, baseConfig(), quietLogger(), WithGenerator(gen), WithArticleSource(src), WithSleeper((&sleepLog{}).sleep))

	report, err := r.PressCampaign(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Posted)
	assert.Equal(t, 0, report.Trending)
}

func TestPressCampaign_Errors(t *testing.T) {
	r := New(newFakeActions(), baseConfig(), quietLogger())
	_, err := r.PressCampaign(context.Background())
	assert.Error(t, err)

	r = New(newFakeActions(), baseConfig(), quietLogger(), WithGenerator(&fakeGenerator{}), WithArticleSource(fakeSource{err: errors.New("site down")}))
	_, err = r.PressCampaign(context.Background())
	assert.ErrorContains(t, err, "site down")
}

func TestPressCampaign_StopsWhenCancelled(t *testing.T) {
	actions := newFakeActions()
	src := fakeSource{articles: []crawler.Article{{Title: "one"}, {Title: "two"}}}
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	r := New(actions, baseConfig(), quietLogger(), WithGenerator(&fakeGenerator{}), WithArticleSource(src), WithSleeper(sleep))

	report, err := r.PressCampaign(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Posted)
}

func TestSelectTags(t *testing.T) {
	tags := []models.Tag{{Name: "#Transit"}, {Name: "weather"}, {Name: "transit"}, {Name: "VoteHawthorne"}, {Name: " "}}

	assert.Equal(t, []string{"Transit", "weather", "VoteHawthorne"}, SelectTags(tags, nil, 0))
	assert.Equal(t, []string{"Transit", "weather"}, SelectTags(tags, nil, 2))
	assert.Equal(t, []string{"Transit", "VoteHawthorne"}, SelectTags(tags, []string{"#transit", "vote"}, 0))
	assert.Empty(t, SelectTags(tags, []string{"sports"}, 0))
}

func TestTrendingEngagement(t *testing.T) {
	actions := newFakeActions()
	actions.tags = []models.Tag{{Name: "transit"}, {Name: "budget"}}
	actions.search["#transit"] = []models.Twoot{
		{ID: 1, Content: "Buses late", Author: author("rider")},
		{ID: 2, Content: "Our plan", Author: author("HawthorneBot")},
	}
	actions.search["#budget"] = []models.Twoot{{ID: 3, Content: "Taxes", Author: author("econ")}}
	actions.likeErr[3] = apperrors.NewAppError(apperrors.CodeRemoteRejected, "nope", nil)
	sl := &sleepLog{}
	r := New(actions, baseConfig(), quietLogger(), WithSelf("hawthornebot"), WithSleeper(sl.sleep))

	report, err := r.TrendingEngagement(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"transit", "budget"}, report.Tags)
	assert.Equal(t, []string{"#transit", "#budget"}, actions.searchQs)
	assert.Equal(t, 1, report.Engaged)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, models.StatusLiked, report.Outcomes[0].Like)
	assert.Equal(t, models.StatusAlreadyReposted, report.Outcomes[0].Repost)
	assert.Equal(t, models.StatusAlreadyReposted, report.Outcomes[1].Repost)
	assert.Empty(t, actions.replies)
	assert.Equal(t, []time.Duration{2 * time.Second, 15 * time.Second, 2 * time.Second}, sl.delays)
}

func TestTrendingEngagement_Replies(t *testing.T) {
	actions := newFakeActions()
	actions.tags = []models.Tag{{Name: "transit"}}
	actions.search["#transit"] = []models.Twoot{{ID: 1, Content: "Buses late", Author: author("rider")}}
	gen := &fakeGenerator{}
	cfg := baseConfig()
	cfg.ReplyToTrending = true
	r := New(actions, cfg, quietLogger(), WithGenerator(gen), WithSleeper((&sleepLog{}).sleep))

	report, err := r.TrendingEngagement(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "generated A", actions.replies[1])
	assert.NotZero(t, report.Outcomes[0].ReplyID)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "#transit")
	assert.Equal(t, []string{"tags", "search", "like", "repost", "reply"}, actions.calls)
}

func TestLoop_RunOnce(t *testing.T) {
	actions := newFakeActions()
	actions.tags = []models.Tag{{Name: "transit"}}
	src := fakeSource{articles: []crawler.Article{{Title: "Plan for schools"}}}
	r := New(actions, baseConfig(), quietLogger(), WithGenerator(&fakeGenerator{}), WithArticleSource(src), WithSleeper((&sleepLog{}).sleep))

	authCalls := 0
	loop := NewLoop(r, []string{WorkflowPress, WorkflowTrending, "bogus"}, time.Minute, func(context.Context) error {
		authCalls++
		return nil
	})

	_, ok := loop.Last()
	assert.False(t, ok)

	summary := loop.RunOnce(context.Background())

	assert.Equal(t, 1, authCalls)
	assert.Equal(t, 1, summary.Cycle)
	require.NotNil(t, summary.Press)
	assert.Equal(t, 1, summary.Press.Posted)
	require.NotNil(t, summary.Engagement)
	assert.Equal(t, []string{"unknown workflow: bogus"}, summary.Errors)

	last, ok := loop.Last()
	require.True(t, ok)
	assert.Equal(t, summary.Cycle, last.Cycle)
}

func TestLoop_AuthFailureSkipsWorkflows(t *testing.T) {
	actions := newFakeActions()
	r := New(actions, baseConfig(), quietLogger())
	loop := NewLoop(r, []string{WorkflowTrending}, time.Minute, func(context.Context) error {
		return apperrors.NewAppError(apperrors.CodeAuthenticationExhausted, "no way in", nil)
	})

	summary := loop.RunOnce(context.Background())

	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "auth:")
	assert.Empty(t, actions.calls)
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	actions := newFakeActions()
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	r := New(actions, baseConfig(), quietLogger(), WithSleeper(sleep))
	loop := NewLoop(r, []string{WorkflowTrending}, time.Minute, nil)

	err := loop.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	last, ok := loop.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Cycle)
}
