package model

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a failed tool result
type ErrorKind string

const (
	ErrorKindInvalidArguments ErrorKind = "invalid_arguments"
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindStoreUnavailable ErrorKind = "store_unavailable"
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindUnregisteredTool ErrorKind = "unregistered_tool"
)

// Retryable reports whether a failure of this kind may succeed on re-dispatch
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindStoreUnavailable || k == ErrorKindTimeout
}

// ToolCall is one invocation requested by the decision layer
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is either success(data, metadata) or failure(kind, message).
// A result is never mutated after construction; cached results are shared.
type ToolResult struct {
	ok       bool
	data     any
	metadata map[string]any
	kind     ErrorKind
	message  string
}

// Success builds a successful result
func Success(data any, metadata map[string]any) *ToolResult {
	return &ToolResult{ok: true, data: data, metadata: metadata}
}

// Failure builds a failed result
func Failure(kind ErrorKind, format string, args ...any) *ToolResult {
	return &ToolResult{kind: kind, message: fmt.Sprintf(format, args...)}
}

func (r *ToolResult) OK() bool                 { return r.ok }
func (r *ToolResult) Data() any                { return r.data }
func (r *ToolResult) Metadata() map[string]any { return r.metadata }
func (r *ToolResult) Kind() ErrorKind          { return r.kind }
func (r *ToolResult) Message() string          { return r.message }

// Citations returns the record references carried by the payload, if any
func (r *ToolResult) Citations() []Citation {
	if !r.ok {
		return nil
	}
	if c, ok := r.data.(Citer); ok {
		return c.Citations()
	}
	return nil
}

type toolResultJSON struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    *toolErrorJSON `json:"error,omitempty"`
}

type toolErrorJSON struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (r *ToolResult) MarshalJSON() ([]byte, error) {
	v := toolResultJSON{Success: r.ok}
	if r.ok {
		v.Data = r.data
		v.Metadata = r.metadata
	} else {
		v.Error = &toolErrorJSON{Kind: r.kind, Message: r.message}
	}
	return json.Marshal(v)
}

// Response converts the result into the generic mapping sent back to the
// answer generator as a function response.
func (r *ToolResult) Response() (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
