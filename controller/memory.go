package controller

import (
	"context"
	"time"
)

// MemoryMetadata tags a memory record. The controller treats it as opaque
// beyond passing it through; the tags mirror what the agent is instructed
// to attach in the memory protocol.
type MemoryMetadata struct {
	Type       string `json:"type,omitempty"`       // tool | strategy | knowledge | failure
	Domain     string `json:"domain,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// MemoryRecord is one unit of cross-session knowledge. Records are keyed by
// UserID and outlive any single session.
type MemoryRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Content   string         `json:"content"`
	Metadata  MemoryMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// MemoryStore is the external persistent memory collaborator. The controller
// issues retrieve and store requests and never reasons about the store's
// internal layout or indexing.
type MemoryStore interface {
	// Retrieve returns records relevant to the query for the given user,
	// most relevant first. An empty result is not an error.
	Retrieve(ctx context.Context, query, userID string, limit int) ([]MemoryRecord, error)

	// Store persists a new record and returns it with ID and CreatedAt set.
	Store(ctx context.Context, content, userID string, meta MemoryMetadata) (*MemoryRecord, error)

	// List returns all records for a user, newest first.
	List(ctx context.Context, userID string, limit int) ([]MemoryRecord, error)

	Close() error
}

// primingLimit caps how many prior records are folded into the first
// rendered context.
const primingLimit = 5

// primeFromMemory retrieves prior knowledge relevant to the objective. It is
// the one deliberately fallible setup operation: any retrieval failure is
// returned for the caller to log as a warning, and the session proceeds
// unprimed. It must never abort session construction.
func primeFromMemory(ctx context.Context, store MemoryStore, objective, userID string) ([]string, error) {
	if store == nil {
		return nil, nil
	}
	records, err := store.Retrieve(ctx, objective, userID, primingLimit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := rec.Content
		if rec.Metadata.Type != "" {
			line = "[" + rec.Metadata.Type + "] " + line
		}
		lines = append(lines, line)
	}
	return lines, nil
}
