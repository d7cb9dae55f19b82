package repository

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docchat/internal/domain"
)

func newTestRecord(source string, index int, text string, embedding []float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:        uuid.NewString(),
		Embedding: embedding,
		Text:      text,
		Metadata: map[string]string{
			domain.MetaSource:     source,
			domain.MetaChunkIndex: strconv.Itoa(index),
		},
	}
}

func openTestIndex(t *testing.T) *SQLiteVectorIndex {
	t.Helper()
	idx, err := OpenSQLiteVectorIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteVectorIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, []domain.VectorRecord{
		newTestRecord("a.txt", 0, "east", []float32{1, 0}),
		newTestRecord("a.txt", 1, "north-east", []float32{1, 1}),
		newTestRecord("b.txt", 0, "north", []float32{0, 1}),
		newTestRecord("b.txt", 1, "west", []float32{-1, 0}),
	}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	results, err := idx.Query(ctx, []float32{1, 0}, 2, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Record.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "north-east", results[1].Record.Text)
	assert.Equal(t, "a.txt", results[1].Record.Source())
	assert.Equal(t, []float32{1, 1}, results[1].Record.Embedding)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSQLiteVectorIndex_ThresholdMonotonic(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	var records []domain.VectorRecord
	for i := 0; i < 20; i++ {
		records = append(records, newTestRecord("doc", i, "chunk "+strconv.Itoa(i), []float32{1, float32(i) / 5}))
	}
	require.NoError(t, idx.Upsert(ctx, records))

	query := []float32{1, 0}
	prev := len(records) + 1
	for _, threshold := range []float32{-1, 0, 0.1, 0.5, 0.8, 0.9, 0.99, 1} {
		results, err := idx.Query(ctx, query, 50, threshold)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), prev, "threshold %v", threshold)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, threshold)
		}
		prev = len(results)
	}
}

func TestSQLiteVectorIndex_ResetIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Reset(ctx))
	require.NoError(t, idx.Upsert(ctx, []domain.VectorRecord{
		newTestRecord("a.txt", 0, "text", []float32{0.3, 0.4}),
	}))
	require.NoError(t, idx.Reset(ctx))
	require.NoError(t, idx.Reset(ctx))

	for _, threshold := range []float32{0.01, 0.5, 1} {
		results, err := idx.Query(ctx, []float32{0.3, 0.4}, 10, threshold)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestSQLiteVectorIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.db")

	idx, err := OpenSQLiteVectorIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []domain.VectorRecord{
		newTestRecord("a.txt", 0, "durable", []float32{1, 2, 3}),
	}))
	require.NoError(t, idx.Close())

	idx, err = OpenSQLiteVectorIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Query(ctx, []float32{1, 2, 3}, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "durable", results[0].Record.Text)
}

func TestSQLiteVectorIndex_SchemaVersionTracked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	for i := 0; i < 2; i++ {
		idx, err := OpenSQLiteVectorIndex(path)
		require.NoError(t, err)

		var version int
		var dirty bool
		require.NoError(t, idx.db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty))
		assert.Equal(t, 1, version)
		assert.False(t, dirty)

		var rows int
		require.NoError(t, idx.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&rows))
		assert.Equal(t, 1, rows, "reopening must not record the migration again")
		require.NoError(t, idx.Close())
	}
}

func TestSQLiteVectorIndex_SkipsOtherDimensions(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, []domain.VectorRecord{
		newTestRecord("a.txt", 0, "small", []float32{1, 0}),
		newTestRecord("a.txt", 1, "large", []float32{1, 0, 0}),
	}))

	results, err := idx.Query(ctx, []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "large", results[0].Record.Text)
}

func TestSQLiteVectorIndex_EmptyInputs(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, nil))

	results, err := idx.Query(ctx, []float32{1}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteVectorIndex_ConcurrentUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, idx.Upsert(ctx, []domain.VectorRecord{
					newTestRecord("doc", w*10+i, "text", []float32{1, float32(i)}),
				}))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := idx.Query(ctx, []float32{1, 0}, 5, 0)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}
