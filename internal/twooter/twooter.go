// Package twooter is the action façade over the Twooter API: posting,
// engagement toggles, threads, search and feeds.
package twooter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/khanasif1/twooter/internal/gateway"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/retry"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
)

// listKeys are the collection keys list endpoints have been seen to use.
var listKeys = []string{"twoots", "posts", "items", "results"}

// Client performs bot actions. Every call requires an authenticated session.
type Client struct {
	gw     *gateway.Client
	sleep  retry.Sleeper
	logger *logrus.Logger
}

func New(gw *gateway.Client) *Client {
	return &Client{gw: gw, sleep: gw.Sleeper(), logger: gw.Logger()}
}

// PostOptions are the optional fields of a new post.
type PostOptions struct {
	ParentID *int64
	Embed    *string
	Media    []string
}

func twootPath(id int64, suffix string) string {
	return "/twoots/" + strconv.FormatInt(id, 10) + suffix
}

// CreatePost publishes content. parent_id is always sent, as null for a
// top-level post.
func (c *Client) CreatePost(ctx context.Context, content string, opts PostOptions) (*models.Twoot, error) {
	var out models.Twoot
	err := c.gw.DoJSON(ctx, gateway.Request{
		Class:  retry.ClassPost,
		Method: http.MethodPost,
		Path:   "/twoots/",
		Body: models.CreateTwootRequest{
			Content:  content,
			ParentID: opts.ParentID,
			Embed:    opts.Embed,
			Media:    opts.Media,
		},
	}, &out)
	if err != nil {
		metrics.RecordAction("post", "error")
		return nil, err
	}
	metrics.RecordAction("post", "success")
	c.logger.WithFields(logrus.Fields{"post_id": out.ID, "parent_id": opts.ParentID}).Info("Post created")
	return &out, nil
}

// Reply posts content as a reply to parentID.
func (c *Client) Reply(ctx context.Context, parentID int64, content string) (*models.Twoot, error) {
	return c.CreatePost(ctx, content, PostOptions{ParentID: &parentID})
}

type toggle struct {
	action string
	method string
	suffix string
	done   models.ActionStatus
	noop   models.ActionStatus
}

var (
	likeToggle     = toggle{"like", http.MethodPost, "/like", models.StatusLiked, models.StatusAlreadyLiked}
	unlikeToggle   = toggle{"unlike", http.MethodDelete, "/like", models.StatusUnliked, models.StatusNotLiked}
	repostToggle   = toggle{"repost", http.MethodPost, "/repost", models.StatusReposted, models.StatusAlreadyReposted}
	unrepostToggle = toggle{"unrepost", http.MethodDelete, "/repost", models.StatusUnreposted, models.StatusNotReposted}
)

// apply runs a toggle. A 409 means the post is already in the requested
// state and yields a no-op result instead of an error.
func (c *Client) apply(ctx context.Context, t toggle, postID int64) (*models.ActionResult, error) {
	req := gateway.Request{
		Class:  retry.ClassPost,
		Method: t.method,
		Path:   twootPath(postID, t.suffix),
	}
	if t.method == http.MethodPost {
		req.Body = struct{}{}
	}

	resp, err := c.gw.Do(ctx, req)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			metrics.RecordAction(t.action, "noop")
			c.logger.WithFields(logrus.Fields{"post_id": postID, "status": t.noop}).Info("Action was a no-op")
			return &models.ActionResult{PostID: postID, Status: t.noop, NoOp: true}, nil
		}
		metrics.RecordAction(t.action, "error")
		return nil, err
	}

	metrics.RecordAction(t.action, "success")
	res := &models.ActionResult{PostID: postID, Status: t.done}
	if json.Valid(resp.Body) {
		res.Data = json.RawMessage(resp.Body)
	}
	return res, nil
}

func (c *Client) Like(ctx context.Context, postID int64) (*models.ActionResult, error) {
	return c.apply(ctx, likeToggle, postID)
}

func (c *Client) Unlike(ctx context.Context, postID int64) (*models.ActionResult, error) {
	return c.apply(ctx, unlikeToggle, postID)
}

func (c *Client) Repost(ctx context.Context, postID int64) (*models.ActionResult, error) {
	return c.apply(ctx, repostToggle, postID)
}

func (c *Client) Unrepost(ctx context.Context, postID int64) (*models.ActionResult, error) {
	return c.apply(ctx, unrepostToggle, postID)
}

// ThreadError reports a thread aborted part way. Created holds the posts
// published before the failure.
type ThreadError struct {
	Created []models.Twoot
	Index   int
	Err     error
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("thread aborted at post %d after %d created: %v", e.Index+1, len(e.Created), e.Err)
}

func (e *ThreadError) Unwrap() error {
	return e.Err
}

func (e *ThreadError) ErrorCode() apperrors.ErrorCode {
	return apperrors.CodeOf(e.Err)
}

// threadSuffix marks post n (1-based) of total.
func threadSuffix(n, total int) string {
	return fmt.Sprintf(" (%d/%d)", n, total)
}

// CreateThread posts contents in order, each replying to the previous one.
// Posts after the first get a " (n/total)" suffix and delay separates posts.
func (c *Client) CreateThread(ctx context.Context, contents []string, delay time.Duration) ([]models.Twoot, error) {
	if len(contents) == 0 {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "thread needs at least one post", nil)
	}

	total := len(contents)
	created := make([]models.Twoot, 0, total)
	var parent *int64

	for i, content := range contents {
		if i > 0 {
			content += threadSuffix(i+1, total)
			if delay > 0 {
				if err := c.sleep(ctx, delay); err != nil {
					return created, &ThreadError{Created: created, Index: i, Err: err}
				}
			}
		}

		post, err := c.CreatePost(ctx, content, PostOptions{ParentID: parent})
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{"index": i + 1, "total": total}).Warn("Thread aborted")
			return created, &ThreadError{Created: created, Index: i, Err: err}
		}
		created = append(created, *post)
		id := post.ID
		parent = &id
	}

	c.logger.WithField("posts", total).Info("Thread created")
	return created, nil
}

// BulkLike likes every id independently. Failures are recorded per id and
// never stop the run.
func (c *Client) BulkLike(ctx context.Context, postIDs []int64, delay time.Duration) *models.BulkResult {
	out := &models.BulkResult{Outcomes: make([]models.BulkOutcome, 0, len(postIDs))}

	for i, id := range postIDs {
		if i > 0 && delay > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				break
			}
		}
		res, err := c.Like(ctx, id)
		if err != nil {
			out.Failed++
			out.Outcomes = append(out.Outcomes, models.BulkOutcome{PostID: id, Error: err.Error()})
			continue
		}
		out.Succeeded++
		out.Outcomes = append(out.Outcomes, models.BulkOutcome{PostID: id, Result: res})
	}
	return out
}

// DeletePost removes one of the bot's own posts.
func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	_, err := c.gw.Do(ctx, gateway.Request{
		Class:  retry.ClassPost,
		Method: http.MethodDelete,
		Path:   twootPath(postID, "/"),
	})
	if err != nil {
		metrics.RecordAction("delete", "error")
		return err
	}
	metrics.RecordAction("delete", "success")
	return nil
}

// GetPost fetches one post.
func (c *Client) GetPost(ctx context.Context, postID int64) (*models.Twoot, error) {
	var out models.Twoot
	if err := c.gw.DoJSON(ctx, gateway.Request{
		Class:  retry.ClassRead,
		Method: http.MethodGet,
		Path:   twootPath(postID, "/"),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) list(ctx context.Context, path string, query url.Values) ([]models.Twoot, error) {
	resp, err := c.gw.Do(ctx, gateway.Request{
		Class:  retry.ClassRead,
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	posts, err := models.DecodeList[models.Twoot](resp.Body, listKeys...)
	if err != nil {
		return nil, apperrors.NewAppErrorf(apperrors.CodeInternalError, err, "failed to parse %s response", path)
	}
	return posts, nil
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// Replies lists the direct replies to a post.
func (c *Client) Replies(ctx context.Context, postID int64) ([]models.Twoot, error) {
	return c.list(ctx, twootPath(postID, "/replies"), nil)
}

// Search finds posts matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Twoot, error) {
	q := limitQuery(limit)
	q.Set("query", strings.TrimSpace(query))
	return c.list(ctx, "/search", q)
}

func (c *Client) TrendingFeed(ctx context.Context, limit int) ([]models.Twoot, error) {
	return c.list(ctx, "/feeds/trending", limitQuery(limit))
}

// LatestFeed lists recent posts, optionally as of a point in time.
func (c *Client) LatestFeed(ctx context.Context, limit int, at time.Time) ([]models.Twoot, error) {
	q := limitQuery(limit)
	if !at.IsZero() {
		q.Set("at", at.UTC().Format(time.RFC3339))
	}
	return c.list(ctx, "/feeds/latest", q)
}

func (c *Client) HomeFeed(ctx context.Context, limit int) ([]models.Twoot, error) {
	return c.list(ctx, "/feeds/home", limitQuery(limit))
}

func (c *Client) ExploreFeed(ctx context.Context, limit int) ([]models.Twoot, error) {
	return c.list(ctx, "/feeds/explore", limitQuery(limit))
}

// UserPosts lists posts authored by username.
func (c *Client) UserPosts(ctx context.Context, username string, limit int) ([]models.Twoot, error) {
	return c.list(ctx, "/users/"+url.PathEscape(username)+"/twoots", limitQuery(limit))
}

// TrendingTags lists trending hashtags.
func (c *Client) TrendingTags(ctx context.Context, limit int) ([]models.Tag, error) {
	resp, err := c.gw.Do(ctx, gateway.Request{
		Class:  retry.ClassRead,
		Method: http.MethodGet,
		Path:   "/tags/trending",
		Query:  limitQuery(limit),
	})
	if err != nil {
		return nil, err
	}
	tags, err := models.DecodeList[models.Tag](resp.Body, "tags", "items", "results")
	if err != nil {
		return nil, apperrors.NewAppErrorf(apperrors.CodeInternalError, err, "failed to parse trending tags")
	}
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}
