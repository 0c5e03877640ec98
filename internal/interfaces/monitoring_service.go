package interfaces

import (
	"context"

	"github.com/ternarybob/harvestd/internal/models"
)

// MonitoringSettings is a partial update of a group's cadence
type MonitoringSettings struct {
	IntervalMinutes *int `json:"interval_minutes,omitempty" validate:"omitnil,gte=1,lte=525600"`
	Priority        *int `json:"priority,omitempty" validate:"omitnil,gte=-1000,lte=1000"`
}

// MonitoringService is the scheduler control surface exposed to operators and other code
type MonitoringService interface {
	RegisterGroup(ctx context.Context, externalID, name string) (*models.MonitoredGroup, error)
	ListGroups(ctx context.Context) ([]*models.MonitoredGroup, error)
	GetGroup(ctx context.Context, id string) (*models.MonitoredGroup, error)
	DeleteGroup(ctx context.Context, id string) error

	EnableMonitoring(ctx context.Context, groupID string, intervalMinutes, priority int) (*models.MonitoredGroup, error)
	DisableMonitoring(ctx context.Context, groupID string) (*models.MonitoredGroup, error)
	UpdateMonitoringSettings(ctx context.Context, groupID string, settings MonitoringSettings) (*models.MonitoredGroup, error)

	// RunGroupNow queues an out-of-band run that bypasses NextRunAt
	RunGroupNow(ctx context.Context, groupID string) error
	// RunCycleNow makes every enabled group immediately due; returns how many were queued
	RunCycleNow(ctx context.Context) (int, error)

	GetEngineStats(ctx context.Context) (*models.EngineStats, error)
}
