//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/testutil"
)

func TestVectorRecordRepository_UpsertQueryReset(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	repo := NewVectorRecordRepository(pool)

	require.NoError(t, repo.Upsert(ctx, []domain.VectorRecord{
		newTestRecord("a.txt", 0, "east", []float32{1, 0, 0}),
		newTestRecord("a.txt", 1, "north-east", []float32{1, 1, 0}),
		newTestRecord("b.txt", 0, "up", []float32{0, 0, 1}),
	}))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := repo.Query(ctx, []float32{1, 0, 0}, 5, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Record.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "a.txt", results[1].Record.Source())
	assert.Equal(t, "1", results[1].Record.Metadata[domain.MetaChunkIndex])

	require.NoError(t, repo.Reset(ctx))
	require.NoError(t, repo.Reset(ctx))

	results, err = repo.Query(ctx, []float32{1, 0, 0}, 5, 0.01)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorRecordRepository_ThresholdMonotonic(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	repo := NewVectorRecordRepository(pool)

	var records []domain.VectorRecord
	for i := 0; i < 10; i++ {
		records = append(records, newTestRecord("doc", i, "chunk", []float32{1, float32(i) / 3}))
	}
	require.NoError(t, repo.Upsert(ctx, records))

	prev := len(records) + 1
	for _, threshold := range []float32{0, 0.3, 0.6, 0.9, 0.99} {
		results, err := repo.Query(ctx, []float32{1, 0}, 20, threshold)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), prev)
		prev = len(results)
	}
}

func TestVectorRecordRepository_QuerySkipsOtherDimensions(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	repo := NewVectorRecordRepository(pool)

	require.NoError(t, repo.Upsert(ctx, []domain.VectorRecord{
		newTestRecord("small.txt", 0, "three", []float32{1, 0, 0}),
		newTestRecord("large.txt", 0, "four", []float32{1, 0, 0, 0}),
	}))

	results, err := repo.Query(ctx, []float32{1, 0, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "four", results[0].Record.Text)

	results, err = repo.Query(ctx, []float32{0, 1}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
