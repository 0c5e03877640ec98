
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/harvestd/internal/models"
)

// ErrGroupNotFound is returned by GroupStorage lookups for unknown ids
var ErrGroupNotFound = errors.New("group not found")

// GroupStorage persists monitored groups and their monitoring metadata
type GroupStorage interface {
	SaveGroup(ctx context.Context, group *models.MonitoredGroup) error
	GetGroup(ctx context.Context, id string) (*models.MonitoredGroup, error)
	ListGroups(ctx context.Context) ([]*models.MonitoredGroup, error)
	DeleteGroup(ctx context.Context, id string) error
	CountGroups(ctx context.Context) (total int, enabled int, err error)

	// ListDueGroups returns enabled groups whose NextRunAt is unset or at/before now
	ListDueGroups(ctx context.Context, now time.Time) ([]*models.MonitoredGroup, error)

	// UpdateGroup applies fn to the stored group in one transaction and saves the result
	UpdateGroup(ctx context.Context, id string, fn func(group *models.MonitoredGroup) error) (*models.MonitoredGroup, error)

	// UpdateMonitoringState applies a run outcome to the stored group atomically
	UpdateMonitoringState(ctx context.Context, groupID string, outcome *models.RunOutcome) (*models.MonitoredGroup, error)
}

// ContentStorage persists harvested posts and comments with idempotent upserts
// keyed on their natural keys
type ContentStorage interface {
	UpsertPosts(ctx context.Context, groupID string, posts []*models.Post) error
	UpsertComments(ctx context.Context, postKey string, comments []*models.Comment) error

	GetPost(ctx context.Context, key string) (*models.Post, error)
	ListPosts(ctx context.Context, groupID string, limit, offset int) ([]*models.Post, error)
	ListComments(ctx context.Context, postKey string, limit, offset int) ([]*models.Comment, error)
	CountPosts(ctx context.Context, groupID string) (int, error)
	CountComments(ctx context.Context, postKey string) (int, error)
	DeleteGroupContent(ctx context.Context, groupID string) error
}

// StorageManager exposes the storage collaborators
type StorageManager interface {
	GroupStorage() GroupStorage
	ContentStorage() ContentStorage
	LoadGroupsFromFiles(ctx context.Context, dirPath string) error
	Close() error
}
