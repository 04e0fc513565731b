package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/metagent/controller"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestStoreAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Store(ctx, "[INSIGHT] caching cut latency in half", "u1",
		controller.MemoryMetadata{Type: "strategy", Domain: "perf"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, "u1", rec.UserID)

	records, err := store.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.Equal(t, "strategy", records[0].Metadata.Type)
}

func TestStoreValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, "", "u1", controller.MemoryMetadata{})
	require.Error(t, err)

	_, err = store.Store(ctx, "content", "", controller.MemoryMetadata{})
	require.Error(t, err)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Store(ctx, fmt.Sprintf("entry %d", i), "u1", controller.MemoryMetadata{})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // distinct timestamps in the keys
	}

	records, err := store.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "entry 2", records[0].Content)
	assert.Equal(t, "entry 0", records[2].Content)

	limited, err := store.List(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUserIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, "belongs to u1", "u1", controller.MemoryMetadata{})
	require.NoError(t, err)
	_, err = store.Store(ctx, "belongs to u2", "u2", controller.MemoryMetadata{})
	require.NoError(t, err)

	records, err := store.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "belongs to u1", records[0].Content)
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, "postgres connection pooling strategy", "u1",
		controller.MemoryMetadata{Type: "strategy", Domain: "database"})
	require.NoError(t, err)
	_, err = store.Store(ctx, "frontend build caching", "u1", controller.MemoryMetadata{})
	require.NoError(t, err)
	_, err = store.Store(ctx, "postgres index tuning for the database layer", "u1",
		controller.MemoryMetadata{Domain: "database"})
	require.NoError(t, err)

	records, err := store.Retrieve(ctx, "postgres database tuning", "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2, "unrelated records must be excluded")
	assert.Contains(t, records[0].Content, "index tuning")
}

func TestRetrieveUnrelatedQueryEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, "postgres pooling", "u1", controller.MemoryMetadata{})
	require.NoError(t, err)

	records, err := store.Retrieve(ctx, "kubernetes ingress", "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRetrieveMatchesMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, "use the bulk endpoint", "u1",
		controller.MemoryMetadata{Type: "knowledge", Domain: "billing"})
	require.NoError(t, err)

	records, err := store.Retrieve(ctx, "billing", "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRetrieveLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Store(ctx, "shared topic entry", "u1", controller.MemoryMetadata{})
		require.NoError(t, err)
	}

	records, err := store.Retrieve(ctx, "shared topic", "u1", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Config{Path: dir})
	require.NoError(t, err)
	_, err = store.Store(context.Background(), "survives restart", "u1", controller.MemoryMetadata{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer store2.Close()

	records, err := store2.List(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "survives restart", records[0].Content)
}

func TestTokenize(t *testing.T) {
	terms := tokenize("Fix the CSV-parser, v2!")
	assert.Equal(t, []string{"fix", "the", "csv", "parser"}, terms)
	assert.Empty(t, tokenize("a b c"))
}
