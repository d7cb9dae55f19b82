package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// VectorRecordRepository is the pgvector-backed vector index.
type VectorRecordRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

func NewVectorRecordRepository(pool *pgxpool.Pool) *VectorRecordRepository {
	return &VectorRecordRepository{pool: pool, db: pool}
}

// Upsert inserts all records in one transaction. Existing ids are left
// untouched since records are never mutated.
func (r *VectorRecordRepository) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			metadata, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			createdAt := rec.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			batch.Queue(
				`INSERT INTO vector_records (id, source, chunk_index, content, metadata, embedding, dimensions, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (id) DO NOTHING`,
				rec.ID,
				rec.Source(),
				chunkIndex(rec),
				rec.Text,
				metadata,
				pgvector.NewVector(rec.Embedding),
				len(rec.Embedding),
				createdAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Query returns up to k records whose cosine similarity to embedding is at
// least threshold, best first. Records of another dimension are skipped.
func (r *VectorRecordRepository) Query(ctx context.Context, embedding []float32, k int, threshold float32) (domain.RetrievalResult, error) {
	if k <= 0 || len(embedding) == 0 {
		return domain.RetrievalResult{}, nil
	}

	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT id, content, metadata, embedding, created_at, 1 - (embedding <=> $1) AS score
		 FROM vector_records
		 WHERE dimensions = $2 AND 1 - (embedding <=> $1) >= $3::float8
		 ORDER BY embedding <=> $1, created_at
		 LIMIT $4`,
		vec, len(embedding), float64(threshold), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := domain.RetrievalResult{}
	for rows.Next() {
		var (
			rec      domain.VectorRecord
			metadata map[string]string
			stored   pgvector.Vector
			score    float64
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &metadata, &stored, &rec.CreatedAt, &score); err != nil {
			return nil, err
		}
		rec.Metadata = metadata
		rec.Embedding = stored.Slice()
		results = append(results, domain.ScoredRecord{Record: rec, Score: float32(score)})
	}

	return results, rows.Err()
}

// Reset removes every record.
func (r *VectorRecordRepository) Reset(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `TRUNCATE TABLE vector_records`)
	return err
}

// Count returns the number of stored records.
func (r *VectorRecordRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM vector_records`).Scan(&n)
	return n, err
}

func chunkIndex(rec domain.VectorRecord) int {
	n, err := strconv.Atoi(rec.Metadata[domain.MetaChunkIndex])
	if err != nil {
		return 0
	}
	return n
}
