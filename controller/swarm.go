package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/martinemde/metagent/engine"
	"go.uber.org/zap"
)

// SwarmResult holds the outcome of one sub-agent in a deployment.
type SwarmResult struct {
	AgentID    string `json:"agent_id"`
	Output     string `json:"output"`
	StopReason string `json:"stop_reason,omitempty"`
	StepsUsed  int    `json:"steps_used"`
	Success    bool   `json:"success"`
}

// SwarmManager spawns scoped sub-agent sessions for a parent session. The
// deployment is a blocking call from the parent's perspective: sub-agents
// run concurrently but the aggregate result is awaited before returning.
type SwarmManager struct {
	engine   engine.ReasoningEngine
	env      ExecutionEnvironment
	store    MemoryStore
	backend  BackendMode
	userID   string
	maxDepth int
	depth    int
	subSteps int
	logger   *zap.Logger
}

// newSwarmManager creates a manager at the given nesting depth.
func newSwarmManager(eng engine.ReasoningEngine, env ExecutionEnvironment, store MemoryStore, backend BackendMode, userID string, maxDepth, depth, subSteps int, logger *zap.Logger) *SwarmManager {
	return &SwarmManager{
		engine:   eng,
		env:      env,
		store:    store,
		backend:  backend,
		userID:   userID,
		maxDepth: maxDepth,
		depth:    depth,
		subSteps: subSteps,
		logger:   logger,
	}
}

// CanSpawn reports whether nesting depth allows another deployment level.
func (m *SwarmManager) CanSpawn() bool {
	return m.depth < m.maxDepth
}

// Deploy runs size sub-agents against the same task concurrently and blocks
// until all have finished. Each sub-agent is a full session with its own
// registry and step budget; sub-agents share the parent's memory store so
// findings propagate, but cannot spawn further swarms.
func (m *SwarmManager) Deploy(ctx context.Context, task string, size int) ([]SwarmResult, error) {
	if !m.CanSpawn() {
		return nil, fmt.Errorf("maximum swarm depth (%d) reached", m.maxDepth)
	}
	if size <= 0 {
		size = 3
	}

	results := make([]SwarmResult, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = m.runSubAgent(ctx, task)
		}(i)
	}
	wg.Wait()

	return results, nil
}

func (m *SwarmManager) runSubAgent(ctx context.Context, task string) SwarmResult {
	cfg := SessionConfig{
		MaxSteps:      m.subSteps,
		Backend:       m.backend,
		UserID:        m.userID,
		MaxSwarmDepth: m.maxDepth,
		swarmDepth:    m.depth + 1,
		Logger:        m.logger,
	}

	sub, err := NewSession(ctx, task, m.engine, m.env, m.store, &cfg)
	if err != nil {
		return SwarmResult{Output: fmt.Sprintf("Error: %v", err)}
	}
	defer sub.Close()

	result, err := sub.Run(ctx, "")
	summary := sub.Summary()
	if err != nil {
		return SwarmResult{
			AgentID:   sub.ID(),
			Output:    fmt.Sprintf("Error: %v", err),
			StepsUsed: summary.StepsTaken,
		}
	}

	out := SwarmResult{
		AgentID:   sub.ID(),
		StepsUsed: summary.StepsTaken,
		Success:   true,
	}
	if result != nil {
		out.Output = result.Text
		out.StopReason = result.StopReason
	}
	return out
}

// formatSwarmResults renders deployment results for the parent transcript.
func formatSwarmResults(results []SwarmResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Swarm complete: %d agent(s)\n", len(results))
	for i, r := range results {
		status := "failed"
		if r.Success {
			status = "completed"
		}
		fmt.Fprintf(&sb, "\n--- Agent %d (%s, %d steps) ---\n", i+1, status, r.StepsUsed)
		if r.StopReason != "" {
			fmt.Fprintf(&sb, "Stop reason: %s\n", r.StopReason)
		}
		sb.WriteString(r.Output)
		sb.WriteString("\n")
	}
	return sb.String()
}
