package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListGroupsTool returns the list_groups tool definition
func createListGroupsTool() mcp.Tool {
	return mcp.NewTool("list_groups",
		mcp.WithDescription("List monitored groups with their cadence and last run status"),
		mcp.WithString("status",
			mcp.Description("Filter by last run status: success, partial, failed"),
		),
	)
}

// createGetGroupTool returns the get_group tool definition
func createGetGroupTool() mcp.Tool {
	return mcp.NewTool("get_group",
		mcp.WithDescription("Show one group's monitoring state including the last recorded error"),
		mcp.WithString("group_id",
			mcp.Required(),
			mcp.Description("Group ID (format: grp_{external_id})"),
		),
	)
}

// createRunGroupTool returns the run_group tool definition
func createRunGroupTool() mcp.Tool {
	return mcp.NewTool("run_group",
		mcp.WithDescription("Queue an immediate harvest of a group, ahead of scheduled work"),
		mcp.WithString("group_id",
			mcp.Required(),
			mcp.Description("Group ID (format: grp_{external_id})"),
		),
	)
}

// createListPostsTool returns the list_posts tool definition
func createListPostsTool() mcp.Tool {
	return mcp.NewTool("list_posts",
		mcp.WithDescription("List the most recently published harvested posts of a group"),
		mcp.WithString("group_id",
			mcp.Required(),
			mcp.Description("Group ID (format: grp_{external_id})"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 100)"),
		),
	)
}

// createEngineStatsTool returns the engine_stats tool definition
func createEngineStatsTool() mcp.Tool {
	return mcp.NewTool("engine_stats",
		mcp.WithDescription("Show scheduler state: running and queued groups, next tick"),
	)
}
