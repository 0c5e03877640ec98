package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
)

// maxTxnRetries bounds retries of read-modify-write transactions on badger conflicts
const maxTxnRetries = 5

// GroupStorage implements the GroupStorage interface for Badger
type GroupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewGroupStorage creates a new GroupStorage instance
func NewGroupStorage(db *BadgerDB, logger arbor.ILogger) interfaces.GroupStorage {
	return &GroupStorage{
		db:     db,
		logger: logger,
	}
}

func (s *GroupStorage) SaveGroup(ctx context.Context, group *models.MonitoredGroup) error {
	if err := group.Validate(); err != nil {
		return fmt.Errorf("invalid group: %w", err)
	}

	now := time.Now()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	if err := s.db.Store().Upsert(group.ID, group); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *GroupStorage) GetGroup(ctx context.Context, id string) (*models.MonitoredGroup, error) {
	var group models.MonitoredGroup
	if err := s.db.Store().Get(id, &group); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrGroupNotFound, id)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

func (s *GroupStorage) ListGroups(ctx context.Context) ([]*models.MonitoredGroup, error) {
	var groups []models.MonitoredGroup
	if err := s.db.Store().Find(&groups, badgerhold.Where("ID").Ne("").SortBy("ID")); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	result := make([]*models.MonitoredGroup, len(groups))
	for i := range groups {
		result[i] = &groups[i]
	}
	return result, nil
}

func (s *GroupStorage) DeleteGroup(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.MonitoredGroup{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", interfaces.ErrGroupNotFound, id)
		}
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func (s *GroupStorage) CountGroups(ctx context.Context) (int, int, error) {
	total, err := s.db.Store().Count(&models.MonitoredGroup{}, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count groups: %w", err)
	}
	enabled, err := s.db.Store().Count(&models.MonitoredGroup{}, badgerhold.Where("Enabled").Eq(true))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count enabled groups: %w", err)
	}
	return int(total), int(enabled), nil
}

// ListDueGroups returns enabled groups that are due at now, most urgent first:
// priority descending, then NextRunAt ascending with never-run groups first, then id.
func (s *GroupStorage) ListDueGroups(ctx context.Context, now time.Time) ([]*models.MonitoredGroup, error) {
	var groups []models.MonitoredGroup
	if err := s.db.Store().Find(&groups, badgerhold.Where("Enabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list enabled groups: %w", err)
	}

	due := make([]*models.MonitoredGroup, 0, len(groups))
	for i := range groups {
		if groups[i].IsDue(now) {
			due = append(due, &groups[i])
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return models.DispatchBefore(due[i], due[j])
	})
	return due, nil
}

// UpdateGroup reads, mutates and writes the group inside one badger transaction,
// retrying on write conflicts
func (s *GroupStorage) UpdateGroup(ctx context.Context, id string, fn func(group *models.MonitoredGroup) error) (*models.MonitoredGroup, error) {
	store := s.db.Store()

	var updated models.MonitoredGroup
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = store.Badger().Update(func(txn *badgerdb.Txn) error {
			var group models.MonitoredGroup
			if err := store.TxGet(txn, id, &group); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return fmt.Errorf("%w: %s", interfaces.ErrGroupNotFound, id)
				}
				return err
			}

			if err := fn(&group); err != nil {
				return err
			}
			group.UpdatedAt = time.Now()

			if err := store.TxUpsert(txn, id, &group); err != nil {
				return err
			}
			updated = group
			return nil
		})
		if !errors.Is(err, badgerdb.ErrConflict) {
			break
		}
		s.logger.Debug().Str("group_id", id).Int("attempt", attempt+1).Msg("Group update conflicted, retrying")
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateMonitoringState folds outcome into the stored group's monitoring metadata
func (s *GroupStorage) UpdateMonitoringState(ctx context.Context, groupID string, outcome *models.RunOutcome) (*models.MonitoredGroup, error) {
	group, err := s.UpdateGroup(ctx, groupID, func(group *models.MonitoredGroup) error {
		group.ApplyOutcome(outcome)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update monitoring state: %w", err)
	}
	return group, nil
}
