// Package harvester walks offset-paginated upstream listings under a hard page cap.
package harvester

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/metrics"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 100
)

// Harvester holds the page size and page cap of one kind of harvest
type Harvester struct {
	pageSize int
	maxPages int
	logger   arbor.ILogger
	events   interfaces.EventService
	metrics  *metrics.Metrics
	windowed bool
}

// Option configures a Harvester
type Option func(*Harvester)

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(h *Harvester) {
		h.logger = logger
	}
}

// WithEventService publishes harvest_truncated events
func WithEventService(events interfaces.EventService) Option {
	return func(h *Harvester) {
		h.events = events
	}
}

// WithMetrics counts truncations
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Harvester) {
		h.metrics = m
	}
}

// WithWindowedCap marks the page cap as a deliberate window over the newest items, such as
// the posts_max_pages bound on a wall. Reaching it is still reported on the result and
// counted, but logged at debug level without a harvest_truncated event.
func WithWindowedCap() Option {
	return func(h *Harvester) {
		h.windowed = true
	}
}

// New creates a Harvester. Non-positive sizes fall back to the defaults.
func New(pageSize, maxPages int, opts ...Option) *Harvester {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	h := &Harvester{pageSize: pageSize, maxPages: maxPages}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = arbor.NewNoOpLogger()
	}
	return h
}

// PageSize returns the number of items requested per page
func (h *Harvester) PageSize() int { return h.pageSize }

// MaxPages returns the page cap
func (h *Harvester) MaxPages() int { return h.maxPages }

// PageFunc fetches the page described by page. A page shorter than page.Count ends the harvest.
type PageFunc[T any] func(ctx context.Context, page interfaces.PageParams) ([]T, error)

// Result is the outcome of one harvest
type Result[T any] struct {
	Items     []T
	Pages     int
	Truncated bool // Stopped at the page cap while the upstream still returned full pages
}

// Harvest fetches pages starting at offset until a short page or the page cap. Truncation
// is reported on the result, not as an error. Any fetch error aborts the harvest and the
// items collected so far are discarded. Each call starts from the given offset; there is
// no resumption.
func Harvest[T any](ctx context.Context, h *Harvester, operation, scope string, offset int, fetch PageFunc[T]) (*Result[T], error) {
	if offset < 0 {
		offset = 0
	}
	result := &Result[T]{}

	for result.Pages < h.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := fetch(ctx, interfaces.PageParams{Offset: offset, Count: h.pageSize})
		if err != nil {
			return nil, fmt.Errorf("%s page %d of %s: %w", operation, result.Pages+1, scope, err)
		}
		result.Pages++
		result.Items = append(result.Items, items...)

		if len(items) < h.pageSize {
			return result, nil
		}
		offset += h.pageSize
	}

	result.Truncated = true
	h.reportTruncation(ctx, operation, scope, result.Pages, len(result.Items))
	return result, nil
}

func (h *Harvester) reportTruncation(ctx context.Context, operation, scope string, pages, items int) {
	h.metrics.IncTruncated(operation)

	if h.windowed {
		h.logger.Debug().
			Str("operation", operation).
			Str("scope", scope).
			Int("pages", pages).
			Msg("Harvest reached window cap")
		return
	}

	h.logger.Warn().
		Str("operation", operation).
		Str("scope", scope).
		Int("pages", pages).
		Int("items", items).
		Msg("Harvest truncated at page cap")

	if h.events == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventHarvestTruncated,
		Payload: interfaces.TruncationPayload{
			Operation: operation,
			Scope:     scope,
			Pages:     pages,
			Items:     items,
		},
	}
	if err := h.events.Publish(ctx, event); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to publish truncation event")
	}
}
