package controller

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized capability output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultCapabilityCharLimits caps capability output before it re-enters the
// engine transcript.
var DefaultCapabilityCharLimits = map[string]int{
	"shell":        30000,
	"run_code":     30000,
	"http_request": 20000,
	"editor":       10000,
	"memory":       20000,
	"swarm":        20000,
}

// defaultTruncationModes selects the mode per capability; anything not
// listed uses head/tail.
var defaultTruncationModes = map[string]TruncationMode{
	"http_request": TruncateTail,
	"editor":       TruncateTail,
	"memory":       TruncateTail,
}

const fallbackCharLimit = 30000

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[Output truncated: first %d characters removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[Output truncated: %d characters removed from the middle. Re-run with more targeted parameters if you need the full output.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateCapabilityOutput applies the per-capability character limit.
func TruncateCapabilityOutput(output, name string, charLimits map[string]int) string {
	maxChars, ok := charLimits[name]
	if !ok {
		maxChars, ok = DefaultCapabilityCharLimits[name]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}
	mode, ok := defaultTruncationModes[name]
	if !ok {
		mode = TruncateHeadTail
	}
	return TruncateOutput(output, maxChars, mode)
}

// FirstLine returns the first line of s, for compact event payloads.
func FirstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
