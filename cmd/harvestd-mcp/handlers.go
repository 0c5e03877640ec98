package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/models"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleListGroups implements the list_groups tool
func handleListGroups(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var body struct {
			Groups []*models.MonitoredGroup `json:"groups"`
		}
		if err := api.do(ctx, "GET", "/api/groups", nil, &body); err != nil {
			logger.Error().Err(err).Msg("List groups failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		status := models.RunStatus(request.GetString("status", ""))
		groups := body.Groups
		if status != "" {
			filtered := groups[:0]
			for _, g := range groups {
				if g.LastStatus == status {
					filtered = append(filtered, g)
				}
			}
			groups = filtered
		}

		return textResult(formatGroups(groups)), nil
	}
}

// handleGetGroup implements the get_group tool
func handleGetGroup(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := request.RequireString("group_id")
		if err != nil || groupID == "" {
			return textResult("Error: group_id parameter is required"), nil
		}

		var group models.MonitoredGroup
		if err := api.do(ctx, "GET", "/api/groups/"+url.PathEscape(groupID), nil, &group); err != nil {
			logger.Error().Err(err).Str("group_id", groupID).Msg("Get group failed")
			return textResult(fmt.Sprintf("Group not available: %v", err)), nil
		}

		return textResult(formatGroup(&group)), nil
	}
}

// handleRunGroup implements the run_group tool
func handleRunGroup(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := request.RequireString("group_id")
		if err != nil || groupID == "" {
			return textResult("Error: group_id parameter is required"), nil
		}

		if err := api.do(ctx, "POST", "/api/groups/"+url.PathEscape(groupID)+"/run", nil, nil); err != nil {
			logger.Warn().Err(err).Str("group_id", groupID).Msg("Run group failed")
			return textResult(fmt.Sprintf("Run not queued: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Run queued for %s.", groupID)), nil
	}
}

// handleListPosts implements the list_posts tool
func handleListPosts(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := request.RequireString("group_id")
		if err != nil || groupID == "" {
			return textResult("Error: group_id parameter is required"), nil
		}

		limit := request.GetInt("limit", 10)
		if limit > 100 {
			limit = 100
		}

		var body struct {
			Posts []*models.Post `json:"posts"`
			Total int            `json:"total"`
		}
		query := url.Values{"limit": {strconv.Itoa(limit)}}
		if err := api.do(ctx, "GET", "/api/groups/"+url.PathEscape(groupID)+"/posts", query, &body); err != nil {
			logger.Error().Err(err).Str("group_id", groupID).Msg("List posts failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatPosts(groupID, body.Posts, body.Total)), nil
	}
}

// handleEngineStats implements the engine_stats tool
func handleEngineStats(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var stats models.EngineStats
		if err := api.do(ctx, "GET", "/api/monitoring/stats", nil, &stats); err != nil {
			logger.Error().Err(err).Msg("Engine stats failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatStats(&stats)), nil
	}
}
