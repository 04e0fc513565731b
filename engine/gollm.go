package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap"
)

// Config configures a GollmEngine.
type Config struct {
	Provider      string  // "anthropic", "openai", or "ollama"
	Model         string  // empty = catalog default for the provider
	APIKey        string  // empty = gollm reads provider env vars
	Thinking      bool    // interleaved thinking, only for supported models
	OllamaHost    string  // base URL for the ollama provider
	MaxTokens     int     // 0 = 4096
	Temperature   float64 // 0 = derived from Thinking
	MaxToolRounds int     // 0 = 25

	// LoopWindow is the capability-call window checked for repeating
	// patterns. 0 = 10; negative disables detection.
	LoopWindow int

	Retry  RetryPolicy
	Logger *zap.Logger
}

// GollmEngine is a ReasoningEngine backed by gollm. It drives the inner
// tool loop for each turn, dispatching parsed capability calls through the
// CapabilitySet until the model produces a final answer or the completion
// capability fires.
type GollmEngine struct {
	provider   string
	model      string
	llm        gollm.LLM
	maxRounds  int
	loopWindow int
	retry      RetryPolicy
	logger     *zap.Logger
}

// NewGollmEngine creates a gollm-backed reasoning engine.
func NewGollmEngine(cfg Config) (*GollmEngine, error) {
	if cfg.Provider == "" {
		return nil, &ConfigurationError{EngineError: EngineError{Message: "provider is required"}}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}
	if model == "" {
		return nil, &ConfigurationError{EngineError: EngineError{
			Message: fmt.Sprintf("no default model known for provider %q", cfg.Provider),
		}}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		// The thinking configuration runs hotter, matching provider guidance
		// for interleaved reasoning.
		temperature = 0.95
		if cfg.Thinking && SupportsThinking(model) {
			temperature = 1.0
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetTemperature(temperature),
		gollm.SetMaxRetries(0), // retries are handled by engine.Retry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.APIKey))
	}
	if cfg.Provider == "ollama" && cfg.OllamaHost != "" {
		gollmOpts = append(gollmOpts, gollm.SetOllamaEndpoint(cfg.OllamaHost))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", cfg.Provider, err)
	}

	maxRounds := cfg.MaxToolRounds
	if maxRounds == 0 {
		maxRounds = 25
	}
	loopWindow := cfg.LoopWindow
	if loopWindow == 0 {
		loopWindow = 10
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = DefaultRetryPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GollmEngine{
		provider:   cfg.Provider,
		model:      model,
		llm:        llm,
		maxRounds:  maxRounds,
		loopWindow: loopWindow,
		retry:      retry,
		logger:     logger,
	}, nil
}

// Model returns the resolved model identifier.
func (e *GollmEngine) Model() string { return e.model }

// Provider returns the provider identifier.
func (e *GollmEngine) Provider() string { return e.provider }

// ExecuteTurn runs one reasoning turn. The operating instructions become the
// system prompt; the transcript accumulates assistant text and capability
// results across inner tool rounds.
func (e *GollmEngine) ExecuteTurn(ctx context.Context, instructions, message string, caps CapabilitySet) (*TurnResult, error) {
	transcript := []string{message}
	tools := translateDefinitions(caps.Definitions())

	result := &TurnResult{}
	lastText := ""
	var callSignatures []string
	loopFlagged := false

	for round := 0; round < e.maxRounds; round++ {
		prompt := e.buildPrompt(instructions, transcript, tools)

		text, err := Retry(ctx, e.retry, func(ctx context.Context) (string, error) {
			out, genErr := e.llm.Generate(ctx, prompt)
			if genErr != nil {
				return "", classifyError(genErr, e.provider)
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}
		result.Rounds = round + 1

		calls := parseToolCalls(text)
		clean := stripToolCallJSON(text, calls)
		if clean != "" {
			lastText = clean
			transcript = append(transcript, "[Assistant]: "+clean)
		}

		if len(calls) == 0 {
			result.Text = lastText
			return result, nil
		}

		for _, call := range calls {
			e.logger.Debug("capability call",
				zap.String("name", call.Name),
				zap.Int("round", round+1))
			result.CapabilityCalls++

			output, invokeErr := caps.Invoke(ctx, call.Name, call.Arguments)
			if invokeErr != nil {
				// Capability failures are fed back to the model so it can
				// recover within the turn.
				transcript = append(transcript,
					fmt.Sprintf("[Tool Error (%s)]: %v", call.Name, invokeErr))
			} else {
				transcript = append(transcript,
					fmt.Sprintf("[Tool Result (%s)]: %s", call.Name, output))
			}

			if reason, ok := caps.CompletionRequested(); ok {
				result.Text = lastText
				result.StopReason = reason
				return result, nil
			}

			callSignatures = append(callSignatures, callSignature(call.Name, call.Arguments))
		}

		if e.loopWindow > 0 && !loopFlagged && detectRepeatingCalls(callSignatures, e.loopWindow) {
			loopFlagged = true
			notice := fmt.Sprintf("[Notice]: The last %d capability calls follow a repeating pattern. Try a different approach.", e.loopWindow)
			transcript = append(transcript, notice)
			e.logger.Warn("capability call loop detected", zap.Int("window", e.loopWindow))
		}
	}

	// Round budget exhausted without a final answer; return what we have.
	result.Text = lastText
	return result, nil
}

// buildPrompt assembles a gollm prompt from the instructions, the running
// transcript, and the capability definitions.
func (e *GollmEngine) buildPrompt(instructions string, transcript []string, tools []gollm.Tool) *gollm.Prompt {
	promptText := strings.Join(transcript, "\n")
	if promptText == "" {
		promptText = "Begin."
	}

	opts := []gollm.PromptOption{
		gollm.WithSystemPrompt(strings.TrimSpace(instructions), gollm.CacheTypeEphemeral),
	}
	if len(tools) > 0 {
		opts = append(opts, gollm.WithTools(tools))
		opts = append(opts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, opts...)
}

func translateDefinitions(defs []ToolDefinition) []gollm.Tool {
	tools := make([]gollm.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, gollm.Tool{
			Type: "function",
			Function: gollm.Function{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

// parseToolCalls extracts capability calls from the response text. gollm
// surfaces tool calls as JSON embedded in the generated text.
func parseToolCalls(text string) []ToolCall {
	start := strings.Index(text, `{"tool_calls"`)
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	remaining := text[start:]
	if strings.HasPrefix(remaining, `{"tool_calls"`) {
		var wrapper struct {
			ToolCalls []struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"tool_calls"`
		}
		if err := json.Unmarshal([]byte(remaining), &wrapper); err != nil {
			return nil
		}
		rawCalls = wrapper.ToolCalls
	} else if err := json.Unmarshal([]byte(remaining), &rawCalls); err != nil {
		return nil
	}

	var calls []ToolCall
	for _, rc := range rawCalls {
		if rc.Name == "" {
			continue
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls
}

// stripToolCallJSON removes parsed tool call JSON from the text.
func stripToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return strings.TrimSpace(text)
	}
	result := text
	for _, pattern := range []string{`{"tool_calls"`, `[{"name"`} {
		if idx := strings.Index(result, pattern); idx != -1 {
			result = result[:idx]
		}
	}
	return strings.TrimSpace(result)
}

// callSignature computes a deterministic signature for a capability call
// (name + hash of arguments).
func callSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// detectRepeatingCalls checks whether the last windowSize call signatures
// follow a repeating pattern of length 1, 2, or 3.
func detectRepeatingCalls(signatures []string, windowSize int) bool {
	if len(signatures) < windowSize {
		return false
	}
	window := signatures[len(signatures)-windowSize:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := window[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if window[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
