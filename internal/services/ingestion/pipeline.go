// Package ingestion runs one full crawl of a group: posts, then the comments of every post,
// normalized and upserted into the content store.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/metrics"
	"github.com/ternarybob/harvestd/internal/models"
	"github.com/ternarybob/harvestd/internal/services/harvester"
)

const (
	opPosts    = "wall.get"
	opComments = "wall.getComments"
)

// Pipeline is the IngestionPipeline
type Pipeline struct {
	source   interfaces.Source
	content  interfaces.ContentStorage
	posts    *harvester.Harvester
	comments *harvester.Harvester
	logger   arbor.ILogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics counts ingested items
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline. posts and comments carry the page size and cap of each harvest.
func NewPipeline(source interfaces.Source, content interfaces.ContentStorage, posts, comments *harvester.Harvester, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		content:  content,
		posts:    posts,
		comments: comments,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = arbor.NewNoOpLogger()
	}
	return p
}

// Run crawls group once.
//
// If the post harvest or the post upsert fails, Run returns a nil result and a group_run
// HarvestError. A comment failure is isolated to its post: the remaining posts are still
// processed, and Run returns the result together with a partial_group HarvestError wrapping
// the first PostError. Cancellation is returned as the bare context error. Upserts run to
// completion once started, even if ctx is cancelled meanwhile.
func (p *Pipeline) Run(ctx context.Context, group *models.MonitoredGroup) (*models.HarvestResult, error) {
	logger := p.logger
	result := &models.HarvestResult{GroupID: group.ID}

	postHarvest, err := harvester.Harvest(ctx, p.posts, opPosts, group.ID, 0,
		func(ctx context.Context, page interfaces.PageParams) ([]*models.Post, error) {
			resp, err := p.source.FetchPosts(ctx, group, page)
			if err != nil {
				return nil, err
			}
			return resp.Items, nil
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.HarvestError{
			Kind:      models.ErrorKindGroupRun,
			Operation: opPosts,
			Message:   "post harvest failed",
			Err:       err,
		}
	}

	posts := postHarvest.Items
	for _, post := range posts {
		normalizePost(group, post)
	}
	result.Posts = posts
	result.PostCount = len(posts)
	result.PostsTruncated = postHarvest.Truncated
	result.PagesFetched = postHarvest.Pages

	// Posts are stored before any comment so comments always reference an existing post
	if err := p.content.UpsertPosts(context.WithoutCancel(ctx), group.ID, posts); err != nil {
		return nil, &models.HarvestError{
			Kind:    models.ErrorKindGroupRun,
			Message: "failed to store posts",
			Err:     err,
		}
	}
	p.metrics.AddIngested("post", len(posts))

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		comments, pages, truncated, err := p.harvestComments(ctx, group, post)
		result.PagesFetched += pages
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn().
				Str("group_id", group.ID).
				Str("post_id", post.ExternalPostID).
				Str("kind", string(models.KindOf(err))).
				Err(err).
				Msg("Comment harvest failed for post, continuing")
			result.PostErrors = append(result.PostErrors, &models.PostError{PostID: post.ExternalPostID, Err: err})
			continue
		}

		if truncated {
			result.TruncatedPostKeys = append(result.TruncatedPostKeys, post.Key)
		}
		result.Comments = append(result.Comments, comments...)
		result.CommentCount += len(comments)
	}

	result.CompletedAt = p.now().UTC()

	logger.Debug().
		Str("group_id", group.ID).
		Int("posts", result.PostCount).
		Int("comments", result.CommentCount).
		Int("failed_posts", len(result.PostErrors)).
		Int("pages", result.PagesFetched).
		Msg("Group harvest finished")

	if len(result.PostErrors) > 0 {
		first := result.PostErrors[0]
		return result, &models.HarvestError{
			Kind:    models.ErrorKindPartialGroup,
			Message: fmt.Sprintf("%d of %d posts failed, first: %v", len(result.PostErrors), len(posts), first.Err),
			Err:     first,
		}
	}

	return result, nil
}

// harvestComments collects, normalizes and stores every comment page of one post
func (p *Pipeline) harvestComments(ctx context.Context, group *models.MonitoredGroup, post *models.Post) ([]*models.Comment, int, bool, error) {
	profiles := make(map[string]*models.Profile)

	h, err := harvester.Harvest(ctx, p.comments, opComments, post.Key, 0,
		func(ctx context.Context, page interfaces.PageParams) ([]*models.Comment, error) {
			resp, err := p.source.FetchComments(ctx, group, post, page)
			if err != nil {
				return nil, err
			}
			for id, profile := range resp.Profiles {
				profiles[id] = profile
			}
			return resp.Items, nil
		})
	if err != nil {
		return nil, 0, false, err
	}

	for _, c := range h.Items {
		normalizeComment(c, profiles)
	}

	if err := p.content.UpsertComments(context.WithoutCancel(ctx), post.Key, h.Items); err != nil {
		return nil, h.Pages, h.Truncated, fmt.Errorf("failed to store comments: %w", err)
	}
	p.metrics.AddIngested("comment", len(h.Items))

	return h.Items, h.Pages, h.Truncated, nil
}
