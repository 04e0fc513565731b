// Package controller implements an adaptive execution controller for an
// LLM-driven agent. A Session wraps a reasoning engine with a fixed step
// budget, urgency classification over the remaining budget, deterministic
// per-turn context rendering, an ordered immutable capability registry, and
// fallible priming from a persistent memory store.
//
// The division of labor with package engine: the controller decides what each
// turn should know (context, urgency, capability set) and when to stop; the
// engine owns the inner model/tool round loop within a turn, including
// transport retries. The controller never retries a turn.
package controller
