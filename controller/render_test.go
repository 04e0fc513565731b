package controller

import (
	"strings"
	"testing"
)

func baseParams() ContextParams {
	return ContextParams{
		Objective:       "audit the build pipeline",
		CurrentStep:     1,
		MaxSteps:        10,
		Urgency:         UrgencyLow,
		Backend:         BackendRemote,
		CapabilityNames: []string{"swarm", "editor", "stop"},
		WorkingDir:      "/tmp/work",
		MemoryEnabled:   true,
	}
}

func TestRenderContextDeterministic(t *testing.T) {
	p := baseParams()
	first := RenderContext(p)
	for i := 0; i < 5; i++ {
		if got := RenderContext(p); got != first {
			t.Fatal("identical params must render byte-identical output")
		}
	}
}

func TestRenderContextMissionParameters(t *testing.T) {
	out := RenderContext(baseParams())

	for _, want := range []string{
		"<mission_parameters>",
		"- Objective: audit the build pipeline",
		"- Current Step: 1/10",
		"- Remaining Steps: 9",
		"- Urgency Level: LOW",
		"- Backend Mode: REMOTE",
		"- Memory System: ENABLED",
		"- Working Directory: /tmp/work",
		"- Available Capabilities: swarm, editor, stop",
		"</mission_parameters>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestRenderContextUrgencyGuidance(t *testing.T) {
	p := baseParams()
	p.CurrentStep = 9
	p.Urgency = UrgencyHigh
	out := RenderContext(p)

	if !strings.Contains(out, "HIGH - Complete core objectives immediately") {
		t.Error("expected HIGH urgency guidance in step budget block")
	}
	if !strings.Contains(out, "- Progress: 9/10 steps used") {
		t.Error("expected progress line")
	}
}

func TestRenderContextPriorKnowledge(t *testing.T) {
	p := baseParams()
	p.PriorKnowledge = []string{"[tool] csv parser lives in tools/parse.py", "[strategy] prefer shell over http"}
	out := RenderContext(p)

	if !strings.Contains(out, "<prior_knowledge>") {
		t.Fatal("expected prior_knowledge block")
	}
	if !strings.Contains(out, "- [tool] csv parser lives in tools/parse.py") {
		t.Error("expected first knowledge line")
	}

	p.PriorKnowledge = nil
	if strings.Contains(RenderContext(p), "<prior_knowledge>") {
		t.Error("empty knowledge must not render a block")
	}
}

func TestRenderContextBackendVariants(t *testing.T) {
	p := baseParams()
	p.Backend = BackendLocal
	local := RenderContext(p)
	p.Backend = BackendRemote
	remote := RenderContext(p)

	if !strings.Contains(local, "local ollama backend") {
		t.Error("local playbook missing ollama guidance")
	}
	if !strings.Contains(remote, "remote provider backend") {
		t.Error("remote playbook missing provider guidance")
	}
	if local == remote {
		t.Error("backend variants must differ")
	}
}

func TestRenderContextMalformedBackendFallsBack(t *testing.T) {
	p := baseParams()
	p.Backend = BackendMode("garbage")
	out := RenderContext(p)
	if !strings.Contains(out, "- Backend Mode: REMOTE") {
		t.Error("malformed backend must fall back to remote, not fail")
	}
	if !strings.Contains(out, "remote provider backend") {
		t.Error("malformed backend must use the remote playbook")
	}
}

func TestRenderContextProtocols(t *testing.T) {
	out := RenderContext(baseParams())
	for _, want := range []string{
		`stop(reason="Objective achieved: [specific outcome]")`,
		`stop(reason="Cannot proceed: [specific limitation]")`,
		`stop(reason="Step budget exhausted. Progress: [summary of achievements]")`,
		"Never end a session without signaling completion.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing completion protocol line %q", want)
		}
	}
}

func TestParseBackendMode(t *testing.T) {
	tests := map[string]BackendMode{
		"remote": BackendRemote,
		"local":  BackendLocal,
		"LOCAL":  BackendLocal,
		"":       BackendRemote,
		"bogus":  BackendRemote,
	}
	for in, want := range tests {
		if got := ParseBackendMode(in); got != want {
			t.Errorf("ParseBackendMode(%q) = %s, want %s", in, got, want)
		}
	}
}
