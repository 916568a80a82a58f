package tools

import (
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/docingest/internal/service"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so the client can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// JSONResult renders v as indented JSON text content.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("failed to encode result", err.Error())
	}
	return TextResult(string(data))
}

// serviceError turns a service error into a tool error with a hint.
func serviceError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return ErrorResult(err.Error(), "Pass exactly one of file_url or file_id, and an overlap smaller than max_chunk_size")
	case errors.Is(err, service.ErrNotFound):
		return ErrorResult(err.Error(), "Use list_jobs to find existing job ids")
	case errors.Is(err, service.ErrAlreadyProcessing), errors.Is(err, service.ErrJobFinished):
		return ErrorResult(err.Error(), "Submit a new job with ingest_document instead")
	default:
		return ErrorResult(err.Error(), "")
	}
}
