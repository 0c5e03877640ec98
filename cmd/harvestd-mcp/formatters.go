package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/harvestd/internal/models"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// formatGroups formats the group registry as a markdown table
func formatGroups(groups []*models.MonitoredGroup) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Monitored groups (%d)\n\n", len(groups)))

	if len(groups) == 0 {
		sb.WriteString("No groups found.\n")
		return sb.String()
	}

	sb.WriteString("| ID | Name | Enabled | Interval | Priority | Last status | Next run |\n")
	sb.WriteString("|----|------|---------|----------|----------|-------------|----------|\n")
	for _, g := range groups {
		status := string(g.LastStatus)
		if status == "" {
			status = "-"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %t | %dm | %d | %s | %s |\n",
			g.ID, g.Name, g.Enabled, g.IntervalMinutes, g.Priority, status, formatTime(g.NextRunAt)))
	}

	return sb.String()
}

// formatGroup formats one group's monitoring state
func formatGroup(g *models.MonitoredGroup) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", g.Name))
	sb.WriteString(fmt.Sprintf("**ID:** %s (external %s)\n", g.ID, g.ExternalID))
	sb.WriteString(fmt.Sprintf("**Enabled:** %t, every %d minutes, priority %d\n", g.Enabled, g.IntervalMinutes, g.Priority))
	sb.WriteString(fmt.Sprintf("**Runs:** %d\n", g.RunCount))
	sb.WriteString(fmt.Sprintf("**Last run:** %s\n", formatTime(g.LastRunAt)))
	sb.WriteString(fmt.Sprintf("**Last success:** %s\n", formatTime(g.LastSuccessAt)))
	sb.WriteString(fmt.Sprintf("**Next run:** %s\n", formatTime(g.NextRunAt)))

	if g.LastStatus != "" {
		sb.WriteString(fmt.Sprintf("\n**Last result:** %s, %d posts, %d comments in %dms",
			g.LastStatus, g.LastPostCount, g.LastCommentCount, g.LastRunDurationMs))
		if g.LastRunTruncated {
			sb.WriteString(" (truncated)")
		}
		sb.WriteString("\n")
	}

	if e := g.LastError; e != nil {
		sb.WriteString("\n## Last error\n")
		sb.WriteString(fmt.Sprintf("- Kind: %s\n", e.Kind))
		if e.Operation != "" {
			sb.WriteString(fmt.Sprintf("- Operation: %s (code %d)\n", e.Operation, e.Code))
		}
		if e.PostID != "" {
			sb.WriteString(fmt.Sprintf("- Post: %s\n", e.PostID))
		}
		sb.WriteString(fmt.Sprintf("- Message: %s\n", e.Message))
	}

	return sb.String()
}

// formatPosts formats harvested posts with a short text preview
func formatPosts(groupID string, posts []*models.Post, total int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Posts of %s (%d of %d)\n\n", groupID, len(posts), total))

	if len(posts) == 0 {
		sb.WriteString("No posts harvested yet.\n")
		return sb.String()
	}

	for i, p := range posts {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, p.PublishedAt.Format(time.RFC3339)))
		if p.URL != "" {
			sb.WriteString(fmt.Sprintf("**URL:** %s\n", p.URL))
		}
		sb.WriteString(fmt.Sprintf("**Likes:** %d · **Comments:** %d · **Views:** %d\n\n", p.LikeCount, p.CommentCount, p.ViewCount))

		text := p.Text
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		sb.WriteString(text)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// formatStats formats the engine snapshot
func formatStats(s *models.EngineStats) string {
	var sb strings.Builder
	sb.WriteString("## Monitoring engine\n\n")
	sb.WriteString(fmt.Sprintf("- Scheduler running: %t\n", s.SchedulerRunning))
	sb.WriteString(fmt.Sprintf("- Groups: %d total, %d enabled, %d due now\n", s.TotalGroups, s.EnabledGroups, s.DueNow))
	sb.WriteString(fmt.Sprintf("- Runs: %d in flight, %d queued\n", s.Running, s.Queued))
	if len(s.RunningGroupIDs) > 0 {
		sb.WriteString(fmt.Sprintf("- In flight: %s\n", strings.Join(s.RunningGroupIDs, ", ")))
	}
	sb.WriteString(fmt.Sprintf("- Last tick: %s\n", formatTime(s.LastTickAt)))
	sb.WriteString(fmt.Sprintf("- Next tick: %s\n", formatTime(s.NextTickAt)))
	return sb.String()
}
