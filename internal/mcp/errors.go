package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorKind is the tool-protocol error taxonomy from spec §6/§7 — the set a
// caller can branch on, distinct from Go's richer internal error chains.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "InvalidArgument"
	KindNotFound        ErrorKind = "NotFound"
	KindUnavailable     ErrorKind = "Unavailable"
	KindInternal        ErrorKind = "Internal"
	KindTimeout         ErrorKind = "Timeout"
	KindPayloadTooLarge ErrorKind = "PayloadTooLarge"
)

type toolErrorBody struct {
	Error struct {
		Kind      ErrorKind `json:"kind"`
		Message   string    `json:"message"`
		Retryable bool      `json:"retryable"`
	} `json:"error"`
}

// errorResult builds the `{error: {kind, message, retryable}}` shape every
// tool handler returns on failure, never leaking internal details beyond the
// classified kind and message.
func errorResult(kind ErrorKind, message string, retryable bool) *mcp.CallToolResult {
	var body toolErrorBody
	body.Error.Kind = kind
	body.Error.Message = message
	body.Error.Retryable = retryable

	encoded, err := json.Marshal(body)
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultText(string(encoded))
}

// internalError classifies an unexpected error as Internal without echoing
// its message — handlers call this for failures that didn't already surface
// a more specific kind, per spec §7's "never leaking internal details" rule.
func internalError(component string, err error) *mcp.CallToolResult {
	return errorResult(KindInternal, component+" failed", false)
}
