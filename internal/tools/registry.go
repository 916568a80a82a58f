package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Queue a PDF, HTML or Markdown document for ingestion into the knowledge base. Returns the job id to poll with get_job",
	}, NewIngestDocumentHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job",
		Description: "Get the status, progress and result of an ingestion job",
	}, NewGetJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List ingestion jobs, newest first, optionally filtered by status",
	}, NewListJobsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_job",
		Description: "Cancel a pending or processing ingestion job. Finished jobs are left unchanged",
	}, NewCancelJobHandler(deps))
}
