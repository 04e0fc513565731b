package engine

import (
	"encoding/json"
	"testing"
)

func TestParseToolCallsWrapper(t *testing.T) {
	text := `I'll check the file first.
{"tool_calls": [{"name": "shell", "arguments": {"command": "ls"}}]}`

	calls := parseToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "shell" {
		t.Errorf("expected shell, got %s", calls[0].Name)
	}
	var args map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("unmarshal arguments: %v", err)
	}
	if args["command"] != "ls" {
		t.Errorf("expected command ls, got %q", args["command"])
	}
	if calls[0].ID == "" {
		t.Error("expected generated call ID")
	}
}

func TestParseToolCallsBareArray(t *testing.T) {
	text := `[{"name": "think", "arguments": {"prompt": "assess"}}, {"name": "current_time", "arguments": {}}]`

	calls := parseToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "think" || calls[1].Name != "current_time" {
		t.Errorf("unexpected names: %s, %s", calls[0].Name, calls[1].Name)
	}
}

func TestParseToolCallsNone(t *testing.T) {
	if calls := parseToolCalls("The objective is complete."); calls != nil {
		t.Errorf("expected nil, got %v", calls)
	}
}

func TestParseToolCallsMalformedJSON(t *testing.T) {
	if calls := parseToolCalls(`{"tool_calls": [{"name": "shell"`); calls != nil {
		t.Errorf("expected nil for malformed JSON, got %v", calls)
	}
}

func TestParseToolCallsSkipsEmptyNames(t *testing.T) {
	text := `{"tool_calls": [{"name": "", "arguments": {}}, {"name": "stop", "arguments": {"reason": "done"}}]}`
	calls := parseToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "stop" {
		t.Errorf("expected stop, got %s", calls[0].Name)
	}
}

func TestStripToolCallJSON(t *testing.T) {
	text := `Let me run that.
{"tool_calls": [{"name": "shell", "arguments": {"command": "ls"}}]}`

	calls := parseToolCalls(text)
	clean := stripToolCallJSON(text, calls)
	if clean != "Let me run that." {
		t.Errorf("expected prose only, got %q", clean)
	}
}

func TestStripToolCallJSONNoCalls(t *testing.T) {
	text := "  Final answer.  "
	if got := stripToolCallJSON(text, nil); got != "Final answer." {
		t.Errorf("expected trimmed text, got %q", got)
	}
}

func TestCallSignatureDeterministic(t *testing.T) {
	a := callSignature("shell", json.RawMessage(`{"command":"ls"}`))
	b := callSignature("shell", json.RawMessage(`{"command":"ls"}`))
	c := callSignature("shell", json.RawMessage(`{"command":"pwd"}`))
	if a != b {
		t.Error("identical calls should produce identical signatures")
	}
	if a == c {
		t.Error("different arguments should produce different signatures")
	}
	if a == callSignature("editor", json.RawMessage(`{"command":"ls"}`)) {
		t.Error("different names should produce different signatures")
	}
}

func TestDetectRepeatingCallsSingle(t *testing.T) {
	sigs := []string{"a", "a", "a", "a", "a", "a", "a", "a", "a", "a"}
	if !detectRepeatingCalls(sigs, 10) {
		t.Error("expected single-call loop to be detected")
	}
}

func TestDetectRepeatingCallsPair(t *testing.T) {
	sigs := []string{"a", "b", "a", "b", "a", "b", "a", "b", "a", "b"}
	if !detectRepeatingCalls(sigs, 10) {
		t.Error("expected alternating pair loop to be detected")
	}
}

func TestDetectRepeatingCallsNoLoop(t *testing.T) {
	sigs := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	if detectRepeatingCalls(sigs, 10) {
		t.Error("distinct calls should not flag a loop")
	}
}

func TestDetectRepeatingCallsShortHistory(t *testing.T) {
	if detectRepeatingCalls([]string{"a", "a"}, 10) {
		t.Error("history shorter than the window should never flag")
	}
}

func TestDetectRepeatingCallsTriplePattern(t *testing.T) {
	// Window 9 accommodates a pattern of length 3.
	sigs := []string{"a", "b", "c", "a", "b", "c", "a", "b", "c"}
	if !detectRepeatingCalls(sigs, 9) {
		t.Error("expected triple pattern loop to be detected")
	}
}

func TestTranslateDefinitions(t *testing.T) {
	defs := []ToolDefinition{
		{Name: "shell", Description: "run a command", Parameters: map[string]interface{}{"type": "object"}},
	}
	tools := translateDefinitions(defs)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Type != "function" {
		t.Errorf("expected type function, got %s", tools[0].Type)
	}
	if tools[0].Function.Name != "shell" {
		t.Errorf("expected shell, got %s", tools[0].Function.Name)
	}
}
