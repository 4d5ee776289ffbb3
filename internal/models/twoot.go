package models

import (
	"bytes"
	"encoding/json"
)

// Twoot is a single post as returned by the API
type Twoot struct {
	ID          int64           `json:"id"`
	Content     string          `json:"content"`
	ParentID    *int64          `json:"parent_id,omitempty"`
	Author      json.RawMessage `json:"author,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	Embed       string          `json:"embed,omitempty"`
	Media       []string        `json:"media,omitempty"`
	LikeCount   int             `json:"like_count,omitempty"`
	RepostCount int             `json:"repost_count,omitempty"`
	ReplyCount  int             `json:"reply_count,omitempty"`
	Tags        []Tag           `json:"tags,omitempty"`
}

// AuthorName returns the author's username whether the API sent a string or an object.
func (t *Twoot) AuthorName() string {
	if len(t.Author) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(t.Author, &name); err == nil {
		return name
	}
	var obj struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(t.Author, &obj); err == nil {
		if obj.Username != "" {
			return obj.Username
		}
		return obj.DisplayName
	}
	return ""
}

// CreateTwootRequest is the body of POST /twoots/.
// ParentID has no omitempty: the API requires the key even when null.
type CreateTwootRequest struct {
	Content  string   `json:"content"`
	ParentID *int64   `json:"parent_id"`
	Embed    *string  `json:"embed,omitempty"`
	Media    []string `json:"media,omitempty"`
}

// Tag is a trending hashtag entry
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

// UnmarshalJSON accepts either {"name": "..."} or a bare string.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Name = name
		return nil
	}
	type alias Tag
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Name == "" {
		var legacy struct {
			Tag string `json:"tag"`
		}
		_ = json.Unmarshal(data, &legacy)
		a.Name = legacy.Tag
	}
	*t = Tag(a)
	return nil
}

// UnwrapData returns the value of a top-level "data" field when the body is
// an object envelope holding one, and the body itself otherwise.
func UnwrapData(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if data, ok := envelope["data"]; ok && len(data) > 0 && string(data) != "null" {
		return data
	}
	return trimmed
}

// DecodeList decodes a list response that may be bare, wrapped in "data",
// or wrapped in one of the given collection keys.
func DecodeList[T any](body []byte, keys ...string) ([]T, error) {
	payload := UnwrapData(body)
	if len(payload) == 0 {
		return nil, nil
	}
	if payload[0] == '[' {
		var items []T
		err := json.Unmarshal(payload, &items)
		return items, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if raw, ok := envelope[k]; ok {
			var items []T
			err := json.Unmarshal(raw, &items)
			return items, err
		}
	}
	return nil, nil
}
