package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/harvestd/internal/common"
)

// The MCP server talks to a running harvestd over its HTTP API; the badger
// store is single-process and stays owned by the engine.
func main() {
	configPath := os.Getenv("HARVESTD_CONFIG")
	if configPath == "" {
		configPath = "harvestd.toml"
	}

	config := common.NewDefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := common.LoadFromFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}

	// Console only at warn, stdout belongs to the MCP stdio transport
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	baseURL := os.Getenv("HARVESTD_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}
	api := newAPIClient(baseURL)

	mcpServer := server.NewMCPServer(
		"harvestd",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createListGroupsTool(), handleListGroups(api, logger))
	mcpServer.AddTool(createGetGroupTool(), handleGetGroup(api, logger))
	mcpServer.AddTool(createRunGroupTool(), handleRunGroup(api, logger))
	mcpServer.AddTool(createListPostsTool(), handleListPosts(api, logger))
	mcpServer.AddTool(createEngineStatsTool(), handleEngineStats(api, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
