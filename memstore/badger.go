// Package memstore persists agent memory records in an embedded BadgerDB.
// It backs the controller's cross-session memory: records are keyed by user
// and timestamp, retrieval is a term-overlap scan ranked by relevance.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/martinemde/metagent/controller"
)

const keyPrefix = "mem/"

// Config configures a BadgerStore.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string

	// InMemory keeps all records in RAM. Data is lost on Close; intended
	// for tests and the --no-memory fallback.
	InMemory bool
}

// BadgerStore implements controller.MemoryStore on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ controller.MemoryStore = (*BadgerStore)(nil)

// Open opens a store at cfg.Path, creating it if needed.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("memstore: path is required for a persistent store")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("memstore: open database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens a volatile store for testing.
func OpenInMemory() (*BadgerStore, error) {
	return Open(Config{InMemory: true})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// userPrefix returns the key prefix holding a user's records. Keys embed a
// nanosecond timestamp so lexicographic key order is chronological.
func userPrefix(userID string) []byte {
	return []byte(keyPrefix + userID + "/")
}

func recordKey(userID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d-%s", keyPrefix, userID, createdAt.UnixNano(), id))
}

// Store persists a new record and returns it with ID and CreatedAt set.
func (s *BadgerStore) Store(ctx context.Context, content, userID string, meta controller.MemoryMetadata) (*controller.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("memstore: content is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("memstore: user id is required")
	}

	rec := controller.MemoryRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("memstore: marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(userID, rec.CreatedAt, rec.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("memstore: store record: %w", err)
	}
	return &rec, nil
}

// scan iterates all records under a user prefix, newest first.
func (s *BadgerStore) scan(userID string) ([]controller.MemoryRecord, error) {
	var records []controller.MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec controller.MemoryRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("memstore: decode record: %w", err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Keys iterate oldest first; callers want newest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// List returns up to limit records for a user, newest first.
func (s *BadgerStore) List(ctx context.Context, userID string, limit int) ([]controller.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := s.scan(userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Retrieve returns up to limit records relevant to the query, most relevant
// first. Relevance is term overlap between the query and record content plus
// metadata tags; ties break toward newer records. Records with no overlap
// are excluded, so an unrelated query returns an empty result.
func (s *BadgerStore) Retrieve(ctx context.Context, query, userID string, limit int) ([]controller.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := s.scan(userID)
	if err != nil {
		return nil, err
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		return records, nil
	}

	type scored struct {
		rec   controller.MemoryRecord
		score int
	}
	var matches []scored
	for _, rec := range records {
		sc := overlapScore(terms, rec)
		if sc > 0 {
			matches = append(matches, scored{rec: rec, score: sc})
		}
	}
	// records is already newest first, so a stable sort keeps recency as
	// the tiebreaker.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]controller.MemoryRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// tokenize lowercases and splits text into terms, dropping short stopwords.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func overlapScore(terms []string, rec controller.MemoryRecord) int {
	haystack := strings.ToLower(rec.Content + " " + rec.Metadata.Type + " " + rec.Metadata.Domain)
	score := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			score++
		}
	}
	return score
}
