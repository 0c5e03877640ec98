// Package wall is the data source collaborator for group walls: a single-attempt HTTP
// transport and a typed client that turns wall.get and wall.getComments payloads into
// the engine's Post and Comment records.
package wall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
)

// Caller issues one logical operation. In production this is the rate-limited retrying client.
type Caller interface {
	Call(ctx context.Context, operation string, params url.Values) (json.RawMessage, error)
}

// Client implements interfaces.Source over the wall API.
type Client struct {
	caller Caller
	now    func() time.Time
}

var _ interfaces.Source = (*Client)(nil)

// NewClient creates a wall client issuing its calls through caller
func NewClient(caller Caller) *Client {
	return &Client{caller: caller, now: time.Now}
}

// OwnerID returns the wall owner id of a group (groups are addressed by negative ids)
func OwnerID(group *models.MonitoredGroup) string {
	id := strings.TrimPrefix(group.ExternalID, "-")
	return "-" + id
}

// FetchPosts retrieves one page of the group's wall
func (c *Client) FetchPosts(ctx context.Context, group *models.MonitoredGroup, page interfaces.PageParams) (*interfaces.PostPage, error) {
	params := url.Values{}
	params.Set("owner_id", OwnerID(group))
	params.Set("offset", strconv.Itoa(page.Offset))
	params.Set("count", strconv.Itoa(page.Count))

	raw, err := c.caller.Call(ctx, OpWallGet, params)
	if err != nil {
		return nil, err
	}

	var list rawPostList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, models.NewPermanentError(OpWallGet, 0, "malformed response", &DecodeError{Operation: OpWallGet, Err: err})
	}

	harvestedAt := c.now().UTC()
	items := make([]*models.Post, 0, len(list.Items))
	for _, rp := range list.Items {
		items = append(items, convertPost(group, rp, harvestedAt))
	}

	return &interfaces.PostPage{Items: items, Total: list.Count}, nil
}

// FetchComments retrieves one page of comments of post, with author profiles
func (c *Client) FetchComments(ctx context.Context, group *models.MonitoredGroup, post *models.Post, page interfaces.PageParams) (*interfaces.CommentPage, error) {
	params := url.Values{}
	params.Set("owner_id", OwnerID(group))
	params.Set("post_id", post.ExternalPostID)
	params.Set("offset", strconv.Itoa(page.Offset))
	params.Set("count", strconv.Itoa(page.Count))
	params.Set("extended", "1")
	params.Set("sort", "asc")

	raw, err := c.caller.Call(ctx, OpWallGetComments, params)
	if err != nil {
		return nil, err
	}

	var list rawCommentList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, models.NewPermanentError(OpWallGetComments, 0, "malformed response", &DecodeError{Operation: OpWallGetComments, Err: err})
	}

	harvestedAt := c.now().UTC()
	items := make([]*models.Comment, 0, len(list.Items))
	for _, rc := range list.Items {
		items = append(items, convertComment(post, rc, harvestedAt))
	}

	profiles := make(map[string]*models.Profile, len(list.Profiles)+len(list.Groups))
	for _, p := range list.Profiles {
		id := strconv.FormatInt(p.ID, 10)
		profiles[id] = &models.Profile{
			ID:          id,
			DisplayName: strings.TrimSpace(p.FirstName + " " + p.LastName),
		}
	}
	for _, g := range list.Groups {
		// Communities comment under their negative id
		id := strconv.FormatInt(-g.ID, 10)
		profiles[id] = &models.Profile{ID: id, DisplayName: g.Name}
	}

	return &interfaces.CommentPage{Items: items, Total: list.Count, Profiles: profiles}, nil
}

func convertPost(group *models.MonitoredGroup, rp rawPost, harvestedAt time.Time) *models.Post {
	externalID := strconv.FormatInt(rp.ID, 10)
	kinds := make([]string, 0, len(rp.Attachments))
	for _, a := range rp.Attachments {
		kinds = append(kinds, a.Type)
	}
	if len(kinds) == 0 {
		kinds = nil
	}

	return &models.Post{
		Key:            models.PostKey(group.ID, externalID),
		GroupID:        group.ID,
		ExternalPostID: externalID,
		AuthorID:       strconv.FormatInt(rp.FromID, 10),
		Text:           rp.Text,
		PublishedAt:    unixTime(rp.Date),
		URL:            fmt.Sprintf("https://vk.com/wall%s_%s", OwnerID(group), externalID),
		LikeCount:      rp.Likes.Count,
		CommentCount:   rp.Comments.Count,
		RepostCount:    rp.Reposts.Count,
		ViewCount:      rp.Views.Count,
		IsPinned:       rp.IsPinned == 1,
		AttachmentKind: kinds,
		HarvestedAt:    harvestedAt,
	}
}

func convertComment(post *models.Post, rc rawComment, harvestedAt time.Time) *models.Comment {
	externalID := strconv.FormatInt(rc.ID, 10)
	c := &models.Comment{
		Key:               models.CommentKey(post.Key, externalID),
		PostKey:           post.Key,
		GroupID:           post.GroupID,
		ExternalPostID:    post.ExternalPostID,
		ExternalCommentID: externalID,
		AuthorID:          strconv.FormatInt(rc.FromID, 10),
		Text:              rc.Text,
		PublishedAt:       unixTime(rc.Date),
		LikeCount:         rc.Likes.Count,
		HarvestedAt:       harvestedAt,
	}
	if rc.ReplyToComment != 0 {
		c.ReplyToCommentID = strconv.FormatInt(rc.ReplyToComment, 10)
	}
	return c
}

func unixTime(secs int64) time.Time {
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
