package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult marshals data into a single text content
func jsonResult(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return textResult(string(content)), nil
}

// errorResult reports a tool failure inside the result with IsError set, so
// the client sees it rather than a protocol error
func errorResult(operation string, err error) (*mcp.CallToolResult, error) {
	res, marshalErr := jsonResult(map[string]any{
		"success":   false,
		"operation": operation,
		"kind":      amerrors.Kind(err),
		"error":     err.Error(),
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	res.IsError = true
	return res, nil
}
