package engine

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID               string   `json:"id"`
	Provider         string   `json:"provider"`
	ContextWindow    int      `json:"context_window"`
	SupportsThinking bool     `json:"supports_thinking"`
	Aliases          []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog.
var Models = []ModelInfo{
	// Anthropic
	{ID: "claude-opus-4-6", Provider: "anthropic", ContextWindow: 200000, SupportsThinking: true, Aliases: []string{"opus"}},
	{ID: "claude-sonnet-4-5", Provider: "anthropic", ContextWindow: 200000, SupportsThinking: true, Aliases: []string{"sonnet"}},

	// OpenAI
	{ID: "gpt-5.2", Provider: "openai", ContextWindow: 1047576, SupportsThinking: true, Aliases: []string{"gpt5"}},
	{ID: "gpt-5.2-mini", Provider: "openai", ContextWindow: 1047576, SupportsThinking: true, Aliases: []string{"gpt5-mini"}},

	// Ollama (local)
	{ID: "llama3.2:3b", Provider: "ollama", ContextWindow: 131072, SupportsThinking: false},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// DefaultModel returns the first (newest/best) catalog model for a provider,
// or an empty string if the provider is unknown.
func DefaultModel(provider string) string {
	for _, m := range Models {
		if m.Provider == provider {
			return m.ID
		}
	}
	return ""
}

// SupportsThinking reports whether a model supports interleaved thinking.
// Unknown models are assumed not to.
func SupportsThinking(modelID string) bool {
	if info := GetModelInfo(modelID); info != nil {
		return info.SupportsThinking
	}
	return false
}
