package badger

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	group   interfaces.GroupStorage
	content interfaces.ContentStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		group:   NewGroupStorage(db, logger),
		content: NewContentStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// GroupStorage returns the group storage
func (m *Manager) GroupStorage() interfaces.GroupStorage {
	return m.group
}

// ContentStorage returns the post and comment storage
func (m *Manager) ContentStorage() interfaces.ContentStorage {
	return m.content
}

// LoadGroupsFromFiles upserts group seed definitions from TOML files
func (m *Manager) LoadGroupsFromFiles(ctx context.Context, dirPath string) error {
	return LoadGroupsFromFiles(ctx, m.group, dirPath, m.logger)
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
