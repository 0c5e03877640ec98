package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
)

// upsertBatchSize keeps each write transaction well under badger's size limit
const upsertBatchSize = 500

// ContentStorage implements the ContentStorage interface for Badger. Posts and comments
// are keyed on their natural keys so re-ingesting an item overwrites it in place.
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertPosts writes posts in batches. FirstSeenAt of an already stored post is preserved.
func (s *ContentStorage) UpsertPosts(ctx context.Context, groupID string, posts []*models.Post) error {
	store := s.db.Store()
	now := time.Now().UTC()

	for start := 0; start < len(posts); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(posts))
		batch := posts[start:end]

		err := store.Badger().Update(func(txn *badgerdb.Txn) error {
			for _, post := range batch {
				if post.GroupID == "" {
					post.GroupID = groupID
				}
				if post.GroupID != groupID {
					return fmt.Errorf("post %s belongs to group %s, not %s", post.Key, post.GroupID, groupID)
				}
				if post.Key == "" {
					post.Key = models.PostKey(groupID, post.ExternalPostID)
				}
				if post.HarvestedAt.IsZero() {
					post.HarvestedAt = now
				}

				var existing models.Post
				err := store.TxGet(txn, post.Key, &existing)
				switch {
				case err == nil && !existing.FirstSeenAt.IsZero():
					post.FirstSeenAt = existing.FirstSeenAt
				case err == nil || errors.Is(err, badgerhold.ErrNotFound):
					post.FirstSeenAt = post.HarvestedAt
				default:
					return err
				}

				if err := store.TxUpsert(txn, post.Key, post); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to upsert posts for %s: %w", groupID, err)
		}
	}

	s.logger.Trace().Str("group_id", groupID).Int("count", len(posts)).Msg("Posts upserted")
	return nil
}

// UpsertComments writes the comments of one post in batches, preserving FirstSeenAt
func (s *ContentStorage) UpsertComments(ctx context.Context, postKey string, comments []*models.Comment) error {
	store := s.db.Store()
	now := time.Now().UTC()

	for start := 0; start < len(comments); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(comments))
		batch := comments[start:end]

		err := store.Badger().Update(func(txn *badgerdb.Txn) error {
			for _, comment := range batch {
				if comment.PostKey == "" {
					comment.PostKey = postKey
				}
				if comment.PostKey != postKey {
					return fmt.Errorf("comment %s belongs to post %s, not %s", comment.Key, comment.PostKey, postKey)
				}
				if comment.Key == "" {
					comment.Key = models.CommentKey(postKey, comment.ExternalCommentID)
				}
				if comment.HarvestedAt.IsZero() {
					comment.HarvestedAt = now
				}

				var existing models.Comment
				err := store.TxGet(txn, comment.Key, &existing)
				switch {
				case err == nil && !existing.FirstSeenAt.IsZero():
					comment.FirstSeenAt = existing.FirstSeenAt
				case err == nil || errors.Is(err, badgerhold.ErrNotFound):
					comment.FirstSeenAt = comment.HarvestedAt
				default:
					return err
				}

				if err := store.TxUpsert(txn, comment.Key, comment); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to upsert comments for %s: %w", postKey, err)
		}
	}

	s.logger.Trace().Str("post_key", postKey).Int("count", len(comments)).Msg("Comments upserted")
	return nil
}

func (s *ContentStorage) GetPost(ctx context.Context, key string) (*models.Post, error) {
	var post models.Post
	if err := s.db.Store().Get(key, &post); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("post not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

// ListPosts returns a group's posts, newest first
func (s *ContentStorage) ListPosts(ctx context.Context, groupID string, limit, offset int) ([]*models.Post, error) {
	query := badgerhold.Where("GroupID").Eq(groupID).SortBy("PublishedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var posts []models.Post
	if err := s.db.Store().Find(&posts, query); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	result := make([]*models.Post, len(posts))
	for i := range posts {
		result[i] = &posts[i]
	}
	return result, nil
}

// ListComments returns a post's comments, newest first
func (s *ContentStorage) ListComments(ctx context.Context, postKey string, limit, offset int) ([]*models.Comment, error) {
	query := badgerhold.Where("PostKey").Eq(postKey).SortBy("PublishedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var comments []models.Comment
	if err := s.db.Store().Find(&comments, query); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	result := make([]*models.Comment, len(comments))
	for i := range comments {
		result[i] = &comments[i]
	}
	return result, nil
}

func (s *ContentStorage) CountPosts(ctx context.Context, groupID string) (int, error) {
	count, err := s.db.Store().Count(&models.Post{}, badgerhold.Where("GroupID").Eq(groupID))
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(count), nil
}

func (s *ContentStorage) CountComments(ctx context.Context, postKey string) (int, error) {
	count, err := s.db.Store().Count(&models.Comment{}, badgerhold.Where("PostKey").Eq(postKey))
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return int(count), nil
}

// DeleteGroupContent removes every post and comment harvested for groupID
func (s *ContentStorage) DeleteGroupContent(ctx context.Context, groupID string) error {
	if err := s.db.Store().DeleteMatching(&models.Comment{}, badgerhold.Where("GroupID").Eq(groupID)); err != nil {
		return fmt.Errorf("failed to delete comments: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.Post{}, badgerhold.Where("GroupID").Eq(groupID)); err != nil {
		return fmt.Errorf("failed to delete posts: %w", err)
	}
	return nil
}
