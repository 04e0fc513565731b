package controller

import (
	"fmt"
	"strings"
)

// BackendMode selects which inference backend variant the strategy playbook
// targets.
type BackendMode string

const (
	// BackendRemote targets a hosted provider (anthropic/openai).
	BackendRemote BackendMode = "remote"
	// BackendLocal targets a local ollama instance.
	BackendLocal BackendMode = "local"
)

// ParseBackendMode maps a string to a BackendMode. Unrecognized values fall
// back to BackendRemote; rendering must never fail on a malformed mode.
func ParseBackendMode(s string) BackendMode {
	if BackendMode(strings.ToLower(s)) == BackendLocal {
		return BackendLocal
	}
	return BackendRemote
}

// ContextParams carries every input to context rendering. RenderContext is a
// pure function over this value: identical params render byte-identical text.
type ContextParams struct {
	Objective       string
	CurrentStep     int
	MaxSteps        int
	Urgency         UrgencyTier
	Backend         BackendMode
	CapabilityNames []string
	// PriorKnowledge holds memory records retrieved at session start,
	// already formatted as one line each. Empty means the session runs
	// unprimed and no memory block is rendered.
	PriorKnowledge []string
	WorkingDir     string
	MemoryEnabled  bool
}

// RenderContext produces the full operating instructions for one turn. The
// output fully replaces the previous turn's instructions; the session
// regenerates it before every turn so the live mission parameters (step
// counters, urgency) stay current.
func RenderContext(p ContextParams) string {
	remaining := p.MaxSteps - p.CurrentStep

	var sb strings.Builder

	sb.WriteString(roleStatement)
	sb.WriteString("\n\n")

	// Mission parameters.
	sb.WriteString("<mission_parameters>\n")
	fmt.Fprintf(&sb, "- Objective: %s\n", p.Objective)
	fmt.Fprintf(&sb, "- Current Step: %d/%d\n", p.CurrentStep, p.MaxSteps)
	fmt.Fprintf(&sb, "- Remaining Steps: %d\n", remaining)
	fmt.Fprintf(&sb, "- Urgency Level: %s\n", p.Urgency)
	fmt.Fprintf(&sb, "- Backend Mode: %s\n", strings.ToUpper(string(normalizeBackend(p.Backend))))
	memState := "DISABLED"
	if p.MemoryEnabled {
		memState = "ENABLED"
	}
	fmt.Fprintf(&sb, "- Memory System: %s\n", memState)
	if p.WorkingDir != "" {
		fmt.Fprintf(&sb, "- Working Directory: %s\n", p.WorkingDir)
	}
	if len(p.CapabilityNames) > 0 {
		fmt.Fprintf(&sb, "- Available Capabilities: %s\n", strings.Join(p.CapabilityNames, ", "))
	}
	sb.WriteString("</mission_parameters>\n\n")

	// Prior knowledge retrieved at session start, if any.
	if len(p.PriorKnowledge) > 0 {
		sb.WriteString("<prior_knowledge>\n")
		sb.WriteString("Relevant insights from previous sessions. Build on them instead of rediscovering:\n")
		for _, k := range p.PriorKnowledge {
			fmt.Fprintf(&sb, "- %s\n", k)
		}
		sb.WriteString("</prior_knowledge>\n\n")
	}

	// Strategy playbook.
	sb.WriteString(capabilityPlaybook(normalizeBackend(p.Backend)))
	sb.WriteString("\n\n")

	// Confidence-based execution framework.
	sb.WriteString(confidenceFramework)
	sb.WriteString("\n\n")

	// Step budget awareness with the live urgency guidance.
	sb.WriteString("<step_budget>\n")
	fmt.Fprintf(&sb, "- Progress: %d/%d steps used\n", p.CurrentStep, p.MaxSteps)
	fmt.Fprintf(&sb, "- Urgency: %s - %s\n", p.Urgency, p.Urgency.Guidance())
	sb.WriteString("- If approaching the limit: summarize progress and invoke stop()\n")
	sb.WriteString("</step_budget>\n\n")

	// Fixed operational protocols.
	sb.WriteString(operationalProtocols)

	return sb.String()
}

func normalizeBackend(m BackendMode) BackendMode {
	if m == BackendLocal {
		return BackendLocal
	}
	// Malformed modes fall back to the remote playbook variant.
	return BackendRemote
}

const roleStatement = `<role>
You are an autonomous problem-solving agent with continuous self-assessment
and adaptation. You tackle any objective through deliberate capability
selection, runtime tool creation, multi-agent delegation, and cross-session
learning. You self-regulate pacing against a fixed step budget and terminate
cleanly by signaling completion.
</role>`

// capabilityPlaybook returns the fixed capability guidance. Only the swarm
// deployment block varies by backend mode.
func capabilityPlaybook(mode BackendMode) string {
	var swarmConfig string
	if mode == BackendLocal {
		swarmConfig = "Sub-agents run against the local ollama backend. Keep swarm sizes small (2-3) and tasks narrow; local models need tightly scoped objectives."
	} else {
		swarmConfig = "Sub-agents run against the remote provider backend. Deploy up to 3 agents with clearly separated roles and expected outputs."
	}

	return `<capabilities>
## 1. SWARM (multi-agent delegation)
Use swarm(task, size) when a problem needs multiple perspectives, parallel
exploration, or specialized expertise. Keep each task under 120 words:
state CONTEXT (what is already done), OBJECTIVE (one specific goal), AVOID
(what not to repeat), and SUCCESS (a measurable outcome). Instruct every
sub-agent to first retrieve shared memory before acting.
` + swarmConfig + `

## 2. TOOL CREATION (runtime capability extension)
When existing capabilities are insufficient: design the tool, write it with
editor(action="create", ...), validate it with run_code, then register it
with create_tool. Store the tool and its use case in memory.

## 3. MEMORY (cross-session learning)
memory(action="retrieve", query=...) before exploring; memory(action="store",
content=..., metadata={type, domain, confidence}) after solutions, failures
with lessons, and discoveries.

## 4. REFLECTION
think(prompt=...) to assess the current approach, confidence level, and
alternative strategies before committing more steps.

## 5. TIME AWARENESS
current_time() for timestamps, scheduling, and temporal context in stored
memories.
</capabilities>`
}

const confidenceFramework = `<execution_strategy>
Select your approach each step by confidence:
- High confidence (>80%): direct execution with existing capabilities.
- Medium confidence (50-80%): reflect deeply; create a tool if a capability
  gap is blocking progress.
- Low confidence (<50%): deploy a swarm of specialized sub-agents and search
  memory extensively before acting.
</execution_strategy>`

const operationalProtocols = `<protocols>
## Memory Protocol
Store insights after: successful solutions, tool creation (with code and use
case), failed attempts (with lessons learned), and domain discoveries.
Content format: [INSIGHT] [CONTEXT] [OUTCOME] [REUSABILITY].

## Completion Protocol
Invoke stop(reason) exactly once, when one of these holds:
- stop(reason="Objective achieved: [specific outcome]")
- stop(reason="Cannot proceed: [specific limitation]")
- stop(reason="Step budget exhausted. Progress: [summary of achievements]")
Never end a session without signaling completion.
</protocols>`
