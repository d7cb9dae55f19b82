package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/storage"
)

// Upload is a file received from a client
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StagingService passes uploads through a Stager and turns them into
// Documents. Staged copies are removed once read.
type StagingService struct {
	stager  storage.Stager
	uuidGen UUIDGenerator
}

// NewStagingService creates a new StagingService instance
func NewStagingService(stager storage.Stager) *StagingService {
	return &StagingService{stager: stager, uuidGen: &DefaultUUIDGenerator{}}
}

// StageDocuments stages, reads back and deletes every upload. The media
// type comes from the declared content type, falling back to the file
// extension.
func (s *StagingService) StageDocuments(ctx context.Context, uploads []Upload) ([]domain.Document, error) {
	batch := s.uuidGen.NewString()
	docs := make([]domain.Document, 0, len(uploads))

	for i, u := range uploads {
		key := fmt.Sprintf("%s/%d-%s", batch, i, path.Base(u.Name))
		content, err := s.roundTrip(ctx, key, u)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError,
				fmt.Sprintf("failed to stage %s", u.Name), err)
		}

		mt := domain.ParseMediaType(u.ContentType)
		if mt == "" {
			mt = domain.MediaTypeFromFilename(u.Name)
		}
		docs = append(docs, domain.Document{
			Name:      u.Name,
			MediaType: mt,
			Content:   content,
		})
	}

	return docs, nil
}

func (s *StagingService) roundTrip(ctx context.Context, key string, u Upload) ([]byte, error) {
	if err := s.stager.Put(ctx, key, u.Body, u.Size, u.ContentType); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.stager.Delete(ctx, key); err != nil {
			log.Printf("staging: failed to delete %s: %v", key, err)
		}
	}()

	rc, err := s.stager.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
