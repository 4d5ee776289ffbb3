package models

import "encoding/json"

// ActionStatus is the outcome of an idempotent toggle action
type ActionStatus string

const (
	StatusLiked           ActionStatus = "liked"
	StatusUnliked         ActionStatus = "unliked"
	StatusReposted        ActionStatus = "reposted"
	StatusUnreposted      ActionStatus = "unreposted"
	StatusAlreadyLiked    ActionStatus = "already_liked"
	StatusNotLiked        ActionStatus = "not_liked"
	StatusAlreadyReposted ActionStatus = "already_reposted"
	StatusNotReposted     ActionStatus = "not_reposted"
)

// ActionResult is returned by like/unlike/repost/unrepost
type ActionResult struct {
	PostID int64           `json:"post_id"`
	Status ActionStatus    `json:"status"`
	NoOp   bool            `json:"no_op"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// BulkOutcome is one entry of a bulk like run
type BulkOutcome struct {
	PostID int64         `json:"post_id"`
	Result *ActionResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// BulkResult summarizes a bulk like run
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Outcomes  []BulkOutcome `json:"outcomes"`
}
