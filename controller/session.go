package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/metagent/engine"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateRunning    SessionState = "running"
	StateTerminated SessionState = "terminated"
)

// ErrSessionTerminated is returned by RunTurn after completion has been
// signaled. Reset restores the session to idle.
var ErrSessionTerminated = errors.New("session terminated")

const (
	defaultMaxSteps      = 10
	defaultSubAgentSteps = 5
	defaultMaxSwarmDepth = 1
	defaultUserID        = "metagent"
)

// SessionConfig configures a session. The zero value is usable: it yields a
// 10-step remote session with no memory extensions.
type SessionConfig struct {
	// MaxSteps is the step budget ceiling. Defaults to 10.
	MaxSteps int

	// Backend selects the playbook variant rendered into the context.
	Backend BackendMode

	// UserID keys memory records. Defaults to "metagent".
	UserID string

	// MaxSwarmDepth bounds sub-agent nesting. Defaults to 1: the root
	// session may deploy a swarm, sub-agents may not.
	MaxSwarmDepth int

	// SubAgentSteps is the step budget given to each swarm sub-agent.
	// Defaults to 5.
	SubAgentSteps int

	// Extensions are caller-supplied capabilities registered after the
	// built-in set, in the given order.
	Extensions []Capability

	// EventBufferSize sizes the event channel. Defaults to 256.
	EventBufferSize int

	Logger *zap.Logger

	// swarmDepth is the nesting level of this session. Only the swarm
	// manager sets it when constructing sub-agent sessions.
	swarmDepth int
}

func (c *SessionConfig) applyDefaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaultMaxSteps
	}
	if c.SubAgentSteps <= 0 {
		c.SubAgentSteps = defaultSubAgentSteps
	}
	if c.MaxSwarmDepth <= 0 {
		c.MaxSwarmDepth = defaultMaxSwarmDepth
	}
	if c.UserID == "" {
		c.UserID = defaultUserID
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	c.Backend = normalizeBackend(c.Backend)
}

// ExecutionSummary accumulates what a session produced beyond its final
// answer: tools written, sub-agents deployed, memory records stored. The
// capabilities record into it as they run; Summary snapshots it.
type ExecutionSummary struct {
	mu            sync.Mutex
	toolsCreated  []string
	agentsSpawned []string
	memoryWrites  int
	reason        string
}

func (s *ExecutionSummary) recordToolCreated(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolsCreated = append(s.toolsCreated, name)
}

func (s *ExecutionSummary) recordAgentSpawned(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentsSpawned = append(s.agentsSpawned, id)
}

func (s *ExecutionSummary) recordMemoryWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryWrites++
}

func (s *ExecutionSummary) setCompletionReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = reason
}

func (s *ExecutionSummary) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolsCreated = nil
	s.agentsSpawned = nil
	s.memoryWrites = 0
	s.reason = ""
}

// SessionSummary is an immutable snapshot of a session's progress.
type SessionSummary struct {
	SessionID        string       `json:"session_id"`
	Objective        string       `json:"objective"`
	State            SessionState `json:"state"`
	StepsTaken       int          `json:"steps_taken"`
	MaxSteps         int          `json:"max_steps"`
	ToolsCreated     []string     `json:"tools_created,omitempty"`
	AgentsSpawned    []string     `json:"agents_spawned,omitempty"`
	MemoryWrites     int          `json:"memory_writes"`
	CompletionReason string       `json:"completion_reason,omitempty"`
}

// Session drives one objective to completion against a fixed step budget. It
// owns the budget, the capability registry, and the rendered context; the
// reasoning engine owns the inner tool loop within each turn.
//
// Turns are serialized: concurrent RunTurn calls queue behind each other.
type Session struct {
	id        string
	objective string
	cfg       SessionConfig

	engine engine.ReasoningEngine
	env    ExecutionEnvironment
	store  MemoryStore

	budget   *StepBudget
	registry *Registry
	latch    *completionLatch
	summary  *ExecutionSummary
	emitter  *EventEmitter
	logger   *zap.Logger

	priorKnowledge []string

	runMu sync.Mutex // serializes turns

	mu    sync.Mutex // guards state
	state SessionState
}

// NewSession constructs a session for the given objective and primes it from
// the memory store. Priming is deliberately fallible: a retrieval failure is
// logged as a warning and the session starts unprimed. A nil store disables
// the memory system entirely.
func NewSession(ctx context.Context, objective string, eng engine.ReasoningEngine, env ExecutionEnvironment, store MemoryStore, cfg *SessionConfig) (*Session, error) {
	if objective == "" {
		return nil, fmt.Errorf("objective is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if env == nil {
		return nil, fmt.Errorf("execution environment is required")
	}
	if cfg == nil {
		cfg = &SessionConfig{}
	}
	resolved := *cfg
	resolved.applyDefaults()

	s := &Session{
		id:        uuid.New().String(),
		objective: objective,
		cfg:       resolved,
		engine:    eng,
		env:       env,
		store:     store,
		budget:    NewStepBudget(resolved.MaxSteps),
		latch:     &completionLatch{},
		summary:   &ExecutionSummary{},
		state:     StateIdle,
	}
	s.logger = resolved.Logger.With(zap.String("session_id", s.id))
	s.emitter = NewEventEmitter(s.id, resolved.EventBufferSize)

	swarm := newSwarmManager(eng, env, store, resolved.Backend, resolved.UserID,
		resolved.MaxSwarmDepth, resolved.swarmDepth, resolved.SubAgentSteps, resolved.Logger)

	deps := coreDeps{
		env:     env,
		store:   store,
		swarm:   swarm,
		summary: s.summary,
		emitter: s.emitter,
		latch:   s.latch,
		userID:  resolved.UserID,
	}
	caps := coreCapabilities(deps)
	caps = append(caps, resolved.Extensions...)

	registry, err := NewRegistry(s.latch, caps...)
	if err != nil {
		return nil, err
	}
	s.registry = registry

	knowledge, err := primeFromMemory(ctx, store, objective, resolved.UserID)
	if err != nil {
		s.logger.Warn("memory priming failed, starting unprimed", zap.Error(err))
		s.emitter.Emit(EventWarning, map[string]interface{}{
			"reason": "memory priming failed",
			"error":  err.Error(),
		})
	} else {
		s.priorKnowledge = knowledge
		if len(knowledge) > 0 {
			s.emitter.Emit(EventMemoryPrimed, map[string]interface{}{
				"records": len(knowledge),
			})
		}
	}

	s.emitter.Emit(EventSessionStart, map[string]interface{}{
		"objective": FirstLine(objective),
		"max_steps": resolved.MaxSteps,
		"backend":   string(resolved.Backend),
		"primed":    len(s.priorKnowledge),
	})
	s.logger.Info("session created",
		zap.String("backend", string(resolved.Backend)),
		zap.Int("max_steps", resolved.MaxSteps),
		zap.Int("primed_records", len(s.priorKnowledge)),
	)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Objective returns the session objective. It never changes, including
// across Reset.
func (s *Session) Objective() string { return s.objective }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the session's event channel.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Capabilities returns the registered capability names in order.
func (s *Session) Capabilities() []string {
	return s.registry.Names()
}

// Summary snapshots the session's progress.
func (s *Session) Summary() SessionSummary {
	s.summary.mu.Lock()
	defer s.summary.mu.Unlock()
	return SessionSummary{
		SessionID:        s.id,
		Objective:        s.objective,
		State:            s.State(),
		StepsTaken:       s.budget.Current(),
		MaxSteps:         s.budget.Max(),
		ToolsCreated:     append([]string(nil), s.summary.toolsCreated...),
		AgentsSpawned:    append([]string(nil), s.summary.agentsSpawned...),
		MemoryWrites:     s.summary.memoryWrites,
		CompletionReason: s.summary.reason,
	}
}

// continuationMessage is the default per-turn message when the caller
// provides none.
func continuationMessage(step, maxSteps int) string {
	return fmt.Sprintf("Continue working on the objective. This is step %d of %d.", step, maxSteps)
}

// RunTurn executes one budgeted turn: advance the step counter, classify
// urgency, regenerate the context, and hand the turn to the reasoning
// engine. Engine errors propagate unmodified; the session does not retry.
//
// Exceeding the budget is advisory. RunTurn keeps working past MaxSteps and
// relies on the HIGH urgency rendering to push the model toward stop().
func (s *Session) RunTurn(ctx context.Context, message string) (*engine.TurnResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil, ErrSessionTerminated
	}
	s.state = StateRunning
	s.mu.Unlock()

	step := s.budget.Advance()
	urgency := ClassifyUrgency(s.budget.Remaining())

	instructions := RenderContext(ContextParams{
		Objective:       s.objective,
		CurrentStep:     step,
		MaxSteps:        s.budget.Max(),
		Urgency:         urgency,
		Backend:         s.cfg.Backend,
		CapabilityNames: s.registry.Names(),
		PriorKnowledge:  s.priorKnowledge,
		WorkingDir:      s.env.WorkingDirectory(),
		MemoryEnabled:   s.store != nil,
	})
	if message == "" {
		message = continuationMessage(step, s.budget.Max())
	}

	s.emitter.Emit(EventTurnStart, map[string]interface{}{
		"step":    step,
		"urgency": string(urgency),
	})
	s.logger.Debug("turn start",
		zap.Int("step", step),
		zap.Int("remaining", s.budget.Remaining()),
		zap.String("urgency", string(urgency)),
	)

	result, err := s.engine.ExecuteTurn(ctx, instructions, message, s.registry)
	if err != nil {
		s.emitter.Emit(EventError, map[string]interface{}{
			"step":  step,
			"error": err.Error(),
		})
		return nil, err
	}

	s.emitter.Emit(EventTurnEnd, map[string]interface{}{
		"step":             step,
		"rounds":           result.Rounds,
		"capability_calls": result.CapabilityCalls,
	})

	if reason, done := s.latch.status(); done {
		s.summary.setCompletionReason(reason)
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
		s.emitter.Emit(EventSessionEnd, map[string]interface{}{
			"reason": reason,
			"steps":  step,
		})
		s.logger.Info("session complete",
			zap.String("reason", reason),
			zap.Int("steps", step),
		)
	}
	return result, nil
}

// Run drives turns until completion is signaled or the step budget is spent.
// The kickoff message seeds the first turn; subsequent turns use the default
// continuation message. One turn past MaxSteps is allowed so the model sees
// the exhausted budget and can summarize before stop(); after that the loop
// ends even without a completion signal.
func (s *Session) Run(ctx context.Context, kickoff string) (*engine.TurnResult, error) {
	var last *engine.TurnResult
	message := kickoff
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if s.State() == StateTerminated {
			return last, nil
		}
		if s.budget.Current() > s.budget.Max() {
			s.emitter.Emit(EventBudgetExceeded, map[string]interface{}{
				"steps":     s.budget.Current(),
				"max_steps": s.budget.Max(),
			})
			s.logger.Warn("step budget exhausted without completion signal",
				zap.Int("steps", s.budget.Current()),
				zap.Int("max_steps", s.budget.Max()),
			)
			return last, nil
		}

		result, err := s.RunTurn(ctx, message)
		if err != nil {
			if errors.Is(err, ErrSessionTerminated) {
				return last, nil
			}
			return last, err
		}
		last = result
		message = ""
	}
}

// Reset returns the session to idle with a fresh budget and summary. The
// objective, capability registry, and primed knowledge are retained.
func (s *Session) Reset() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.budget.Reset()
	s.summary.reset()
	s.latch.reset()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("session reset")
}

// Close releases the session's event channel. It does not close the memory
// store; the store is shared with sub-agents and owned by the caller.
func (s *Session) Close() {
	s.emitter.Close()
}
