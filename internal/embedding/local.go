// Package embedding runs a sentence transformer in process.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const (
	// DefaultModel produces 384-dimensional embeddings
	DefaultModel     = "sentence-transformers/all-MiniLM-L6-v2"
	defaultBatchSize = 32
)

// ErrNoEmbedding is returned when the pipeline yields fewer vectors than inputs
var ErrNoEmbedding = errors.New("no embedding generated")

type runFunc func(texts []string) ([][]float32, error)

// LocalEmbedder embeds text with a hugot feature extraction pipeline.
type LocalEmbedder struct {
	mu        sync.Mutex
	run       runFunc
	destroy   func() error
	batchSize int
	dims      int
}

// modelPath is where hugot stores a downloaded model: the org and name
// joined by an underscore.
func modelPath(modelDir, modelName string) string {
	return filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
}

// PrepareModel downloads the model into modelDir unless it is already there
// and returns its path.
func PrepareModel(modelDir, modelName string) (string, error) {
	path := modelPath(modelDir, modelName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		opts := hugot.NewDownloadOptions()
		opts.OnnxFilePath = "onnx/model.onnx"
		downloaded, err := hugot.DownloadModel(modelName, modelDir, opts)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
		path = downloaded
	}

	return path, nil
}

// NewLocalEmbedder loads the model with the pure Go backend. Any failure is
// reported as EmbeddingUnavailable since the service cannot run without it.
func NewLocalEmbedder(modelDir, modelName string, batchSize int) (*LocalEmbedder, error) {
	if modelName == "" {
		modelName = DefaultModel
	}

	modelPath, err := PrepareModel(modelDir, modelName)
	if err != nil {
		return nil, unavailable(err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to create hugot session: %w", err))
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "docchat-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			err = fmt.Errorf("%w (cleanup error: %v)", err, destroyErr)
		}
		return nil, unavailable(fmt.Errorf("failed to create embedding pipeline: %w", err))
	}

	run := func(texts []string) ([][]float32, error) {
		out, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return out.Embeddings, nil
	}

	return newLocalEmbedder(run, session.Destroy, batchSize), nil
}

func newLocalEmbedder(run runFunc, destroy func() error, batchSize int) *LocalEmbedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &LocalEmbedder{run: run, destroy: destroy, batchSize: batchSize}
}

// Dimensions returns the vector length, or 0 before the first embedding.
func (e *LocalEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

// Probe embeds a fixed string to prove the model works.
func (e *LocalEmbedder) Probe(ctx context.Context) error {
	_, err := e.GenerateEmbedding(ctx, "ping")
	return err
}

// GenerateEmbedding embeds a single text.
func (e *LocalEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateEmbeddings embeds texts in order. Inference is serialized; the
// pipeline already parallelizes within a batch.
func (e *LocalEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(texts))

		vectors, err := e.run(texts[start:end])
		if err != nil {
			return nil, unavailable(fmt.Errorf("failed to generate embedding: %w", err))
		}
		if len(vectors) != end-start {
			return nil, unavailable(ErrNoEmbedding)
		}
		for _, v := range vectors {
			if e.dims == 0 {
				e.dims = len(v)
			} else if len(v) != e.dims {
				return nil, unavailable(fmt.Errorf("embedding dimension changed from %d to %d", e.dims, len(v)))
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Close releases the hugot session.
func (e *LocalEmbedder) Close() error {
	if e.destroy == nil {
		return nil
	}
	return e.destroy()
}

func unavailable(err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingUnavailable, "embedding model unavailable", err)
}
