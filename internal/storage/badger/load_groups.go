package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
)

// GroupSeedFile is the TOML shape of a group definitions file
type GroupSeedFile struct {
	Groups []GroupSeed `toml:"group"`
}

// GroupSeed is one [[group]] entry
type GroupSeed struct {
	ExternalID      string `toml:"external_id"`
	Name            string `toml:"name"`
	ScreenName      string `toml:"screen_name"`
	Enabled         bool   `toml:"enabled"`
	IntervalMinutes int    `toml:"interval_minutes"`
	Priority        int    `toml:"priority"`
}

// LoadGroupsFromFiles upserts every [[group]] entry of the .toml files in dir.
// Existing groups keep their monitoring state; only identity and cadence come from the file.
func LoadGroupsFromFiles(ctx context.Context, groupStorage interfaces.GroupStorage, dir string, logger arbor.ILogger) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug().Str("dir", dir).Msg("Group definitions directory does not exist, skipping")
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read group definitions directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read group definitions file")
			continue
		}

		var file GroupSeedFile
		if err := toml.Unmarshal(data, &file); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse group definitions TOML")
			continue
		}

		for _, seed := range file.Groups {
			group, err := applySeed(ctx, groupStorage, seed)
			if err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("external_id", seed.ExternalID).Msg("Failed to load group")
				continue
			}
			logger.Debug().
				Str("file", entry.Name()).
				Str("group_id", group.ID).
				Bool("enabled", group.Enabled).
				Int("interval_minutes", group.IntervalMinutes).
				Msg("Group loaded from file")
			loadedCount++
		}
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Str("dir", dir).Msg("Groups loaded from files")
	} else {
		logger.Debug().Msg("No groups loaded from files")
	}

	return nil
}

func applySeed(ctx context.Context, groupStorage interfaces.GroupStorage, seed GroupSeed) (*models.MonitoredGroup, error) {
	externalID := strings.TrimSpace(seed.ExternalID)
	if externalID == "" {
		return nil, fmt.Errorf("external_id is required")
	}
	interval := seed.IntervalMinutes
	if interval <= 0 {
		interval = models.DefaultIntervalMinutes
	}
	id := models.GroupIDFromExternal(externalID)

	group, err := groupStorage.UpdateGroup(ctx, id, func(g *models.MonitoredGroup) error {
		intervalChanged := g.IntervalMinutes != interval
		if seed.Name != "" {
			g.Name = seed.Name
		}
		if seed.ScreenName != "" {
			g.ScreenName = seed.ScreenName
		}
		g.Enabled = seed.Enabled
		g.IntervalMinutes = interval
		g.Priority = seed.Priority
		if intervalChanged {
			g.RescheduleFromLastRun()
		}
		return nil
	})
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, interfaces.ErrGroupNotFound) {
		return nil, err
	}

	group = models.NewMonitoredGroup(externalID, seed.Name)
	group.ScreenName = seed.ScreenName
	group.Enabled = seed.Enabled
	group.IntervalMinutes = interval
	group.Priority = seed.Priority
	if err := groupStorage.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}
