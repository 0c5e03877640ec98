package interfaces

import (
	"context"

	"github.com/ternarybob/harvestd/internal/models"
)

// PageParams selects one page of an offset-paginated upstream listing
type PageParams struct {
	Offset int
	Count  int
}

// PostPage is one page of normalized posts as returned by the data source
type PostPage struct {
	Items []*models.Post
	Total int // Upstream-reported total, informational only
}

// CommentPage is one page of comments plus the side-channel author profiles
type CommentPage struct {
	Items    []*models.Comment
	Total    int
	Profiles map[string]*models.Profile // Keyed by author id
}

// Source is the external data source collaborator. Implementations perform their
// outbound calls through the shared rate-limited, retrying client.
type Source interface {
	FetchPosts(ctx context.Context, group *models.MonitoredGroup, page PageParams) (*PostPage, error)
	FetchComments(ctx context.Context, group *models.MonitoredGroup, post *models.Post, page PageParams) (*CommentPage, error)
}
