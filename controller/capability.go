package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/martinemde/metagent/engine"
)

// Descriptor is the serializable metadata of a capability: its name, a
// description for the model, an optional human-readable signature for the
// rendered context, and a JSON Schema for its arguments.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Signature   string                 `json:"signature,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Capability is a named external operation the reasoning engine may invoke
// during a turn. Implementations are resolved once at registry construction,
// never by string matching at call time.
type Capability interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, arguments json.RawMessage) (string, error)
}

// capabilityFunc adapts a function to the Capability interface.
type capabilityFunc struct {
	descriptor Descriptor
	invoke     func(ctx context.Context, arguments json.RawMessage) (string, error)
}

func (c *capabilityFunc) Descriptor() Descriptor { return c.descriptor }

func (c *capabilityFunc) Invoke(ctx context.Context, arguments json.RawMessage) (string, error) {
	return c.invoke(ctx, arguments)
}

// NewCapability builds a Capability from a descriptor and an invoke function.
func NewCapability(d Descriptor, invoke func(ctx context.Context, arguments json.RawMessage) (string, error)) Capability {
	return &capabilityFunc{descriptor: d, invoke: invoke}
}

// completionLatch records the completion signal for the current session run.
type completionLatch struct {
	mu     sync.Mutex
	fired  bool
	reason string
}

func (l *completionLatch) signal(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fired {
		l.fired = true
		l.reason = reason
	}
}

func (l *completionLatch) status() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason, l.fired
}

func (l *completionLatch) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired = false
	l.reason = ""
}

// Registry is the ordered, immutable set of capabilities for a session.
// It is assembled once at construction (built-ins first, caller extensions
// after, insertion order preserved) and implements engine.CapabilitySet.
type Registry struct {
	ordered []Capability
	byName  map[string]Capability
	latch   *completionLatch

	// truncation limits applied to capability output before it re-enters
	// the engine transcript.
	charLimits map[string]int
}

// NewRegistry builds a registry from capabilities in the given order.
// Duplicate names are rejected.
func NewRegistry(latch *completionLatch, caps ...Capability) (*Registry, error) {
	r := &Registry{
		byName:     make(map[string]Capability, len(caps)),
		latch:      latch,
		charLimits: DefaultCapabilityCharLimits,
	}
	for _, c := range caps {
		name := c.Descriptor().Name
		if name == "" {
			return nil, fmt.Errorf("capability with empty name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate capability %q", name)
		}
		r.ordered = append(r.ordered, c)
		r.byName[name] = c
	}
	return r, nil
}

// Names returns capability names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, c := range r.ordered {
		names[i] = c.Descriptor().Name
	}
	return names
}

// Descriptors returns capability descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	descs := make([]Descriptor, len(r.ordered))
	for i, c := range r.ordered {
		descs[i] = c.Descriptor()
	}
	return descs
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int { return len(r.ordered) }

// Definitions implements engine.CapabilitySet.
func (r *Registry) Definitions() []engine.ToolDefinition {
	defs := make([]engine.ToolDefinition, len(r.ordered))
	for i, c := range r.ordered {
		d := c.Descriptor()
		defs[i] = engine.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return defs
}

// Invoke implements engine.CapabilitySet: it dispatches to the resolved
// capability and truncates its output before the result re-enters the
// engine transcript.
func (r *Registry) Invoke(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	c, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown capability: %s", name)
	}
	output, err := c.Invoke(ctx, arguments)
	if err != nil {
		return "", err
	}
	return TruncateCapabilityOutput(output, name, r.charLimits), nil
}

// CompletionRequested implements engine.CapabilitySet.
func (r *Registry) CompletionRequested() (string, bool) {
	return r.latch.status()
}

// Argument helpers shared by capability implementations.

// ParseArguments unmarshals raw capability arguments into a map.
func ParseArguments(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid capability arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed arguments.
func GetIntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed arguments.
func GetBoolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
