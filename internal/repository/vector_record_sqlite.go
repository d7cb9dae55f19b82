package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/domain"
)

// SQLiteVectorIndex stores records in a single SQLite file and searches
// them with a brute-force cosine scan. Reads share a lock; Upsert and
// Reset take it exclusively.
type SQLiteVectorIndex struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// OpenSQLiteVectorIndex opens (creating if needed) the index at path.
// ":memory:" gives a throwaway index.
func OpenSQLiteVectorIndex(path string) (*SQLiteVectorIndex, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	idx := &SQLiteVectorIndex{db: db, path: path}

	if err := database.MigrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return idx, nil
}

// Path returns the database file path.
func (s *SQLiteVectorIndex) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteVectorIndex) Close() error {
	return s.db.Close()
}

// Upsert inserts all records in one transaction.
func (s *SQLiteVectorIndex) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO vector_records (id, source, chunk_index, content, metadata, embedding, dimensions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.Source(),
			chunkIndex(rec),
			rec.Text,
			string(metadata),
			encodeEmbedding(rec.Embedding),
			len(rec.Embedding),
			createdAt,
		); err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// Query returns up to k records whose cosine similarity to embedding is at
// least threshold, best first. Ties keep insertion order.
func (s *SQLiteVectorIndex) Query(ctx context.Context, embedding []float32, k int, threshold float32) (domain.RetrievalResult, error) {
	if k <= 0 || len(embedding) == 0 {
		return domain.RetrievalResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding, created_at
		 FROM vector_records
		 WHERE dimensions = ?
		 ORDER BY rowid`,
		len(embedding),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := domain.RetrievalResult{}
	for rows.Next() {
		var (
			rec      domain.VectorRecord
			metadata string
			blob     []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &metadata, &blob, &rec.CreatedAt); err != nil {
			return nil, err
		}

		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		score := cosineSimilarity(embedding, vec)
		if score < threshold {
			continue
		}

		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("record %s: decoding metadata: %w", rec.ID, err)
		}
		rec.Embedding = vec
		results = append(results, domain.ScoredRecord{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Reset removes every record.
func (s *SQLiteVectorIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_records`)
	return err
}

// Count returns the number of stored records.
func (s *SQLiteVectorIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM vector_records`).Scan(&n)
	return n, err
}
