package models

import (
	"time"
)

// Post is a normalized group post. Key is the natural key (group id + upstream post id),
// so re-ingesting the same post updates the same record.
type Post struct {
	Key            string    `json:"key"` // {group_id}:{external_post_id}
	GroupID        string    `json:"group_id" badgerhold:"index"`
	ExternalPostID string    `json:"external_post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name,omitempty"`
	Text           string    `json:"text"`
	PublishedAt    time.Time `json:"published_at"`
	URL            string    `json:"url,omitempty"`

	LikeCount    int `json:"like_count"`
	CommentCount int `json:"comment_count"` // Upstream-reported count, may exceed harvested comments
	RepostCount  int `json:"repost_count"`
	ViewCount    int `json:"view_count"`

	IsPinned       bool     `json:"is_pinned,omitempty"`
	AttachmentKind []string `json:"attachment_kind,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	HarvestedAt time.Time `json:"harvested_at"`
}

// Comment is a normalized comment keyed on (post key, upstream comment id)
type Comment struct {
	Key               string    `json:"key"` // {post_key}:{external_comment_id}
	PostKey           string    `json:"post_key" badgerhold:"index"`
	GroupID           string    `json:"group_id"`
	ExternalPostID    string    `json:"external_post_id"`
	ExternalCommentID string    `json:"external_comment_id"`
	AuthorID          string    `json:"author_id"`
	AuthorName        string    `json:"author_name,omitempty"`
	Text              string    `json:"text"`
	PublishedAt       time.Time `json:"published_at"`
	ReplyToCommentID  string    `json:"reply_to_comment_id,omitempty"`
	LikeCount         int       `json:"like_count"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	HarvestedAt time.Time `json:"harvested_at"`
}

// Profile is side-channel author data returned alongside comments
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// PostKey builds the natural key of a post
func PostKey(groupID, externalPostID string) string {
	return groupID + ":" + externalPostID
}

// CommentKey builds the natural key of a comment
func CommentKey(postKey, externalCommentID string) string {
	return postKey + ":" + externalCommentID
}
