package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/harvestd/internal/models"
)

func TestFormatGroupIncludesLastError(t *testing.T) {
	g := models.NewMonitoredGroup("42", "City news")
	g.LastStatus = models.RunStatusPartial
	g.LastRunTruncated = true
	g.LastError = &models.RunError{
		Kind:      models.ErrorKindPartialGroup,
		Operation: "wall.getComments",
		Code:      15,
		PostID:    "7",
		Message:   "access denied",
	}

	out := formatGroup(g)
	assert.Contains(t, out, "grp_42")
	assert.Contains(t, out, "(truncated)")
	assert.Contains(t, out, "wall.getComments (code 15)")
	assert.Contains(t, out, "- Post: 7")
}

func TestFormatGroupsAndStats(t *testing.T) {
	assert.Contains(t, formatGroups(nil), "No groups found.")

	next := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	g := models.NewMonitoredGroup("1", "A")
	g.NextRunAt = &next
	out := formatGroups([]*models.MonitoredGroup{g})
	assert.Contains(t, out, "| grp_1 | A | false | 60m | 0 | - | 2026-05-01T10:00:00Z |")

	stats := formatStats(&models.EngineStats{Running: 2, RunningGroupIDs: []string{"grp_1", "grp_2"}})
	assert.Contains(t, stats, "In flight: grp_1, grp_2")
	assert.Contains(t, stats, "Next tick: never")
}
