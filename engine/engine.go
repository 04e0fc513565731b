package engine

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a capability for the model (serializable metadata).
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a capability invocation parsed from a model response.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CapabilitySet is the contract the controller's capability registry
// fulfills for the engine. Definitions feed the model request; Invoke
// dispatches a parsed call; CompletionRequested reports whether the
// completion capability has been triggered during this turn.
type CapabilitySet interface {
	Definitions() []ToolDefinition
	Invoke(ctx context.Context, name string, arguments json.RawMessage) (string, error)
	CompletionRequested() (reason string, ok bool)
}

// TurnResult is the outcome of a single reasoning turn.
type TurnResult struct {
	// Text is the final assistant text for the turn.
	Text string `json:"text"`
	// StopReason is non-empty when the completion capability fired.
	StopReason string `json:"stop_reason,omitempty"`
	// Rounds is the number of model calls made during the turn.
	Rounds int `json:"rounds"`
	// CapabilityCalls is the number of capability invocations dispatched.
	CapabilityCalls int `json:"capability_calls"`
}

// ReasoningEngine executes one turn: it receives the operating instructions
// rendered by the controller, the turn message, and the capability set, and
// returns the turn result. It may invoke capabilities zero or more times
// before returning.
type ReasoningEngine interface {
	ExecuteTurn(ctx context.Context, instructions, message string, caps CapabilitySet) (*TurnResult, error)
}
