// Package engine defines the reasoning-engine boundary for the adaptive
// execution controller and provides a gollm-backed implementation.
//
// The controller hands each turn to a ReasoningEngine together with the
// rendered operating instructions and the live capability set. The engine
// owns the inner tool loop: it calls the model, parses capability
// invocations out of the response, dispatches them through the
// CapabilitySet, and feeds results back until the model finishes or a
// completion signal is observed.
//
// Transport-level failures use a typed error hierarchy with retryable
// classification; retryable errors are retried with exponential backoff
// inside the engine. Failures that survive retry propagate to the caller
// unmodified; the controller never retries a turn.
package engine
