package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
)

// UploadField is the multipart field carrying documents to index
const UploadField = "file"

type DocumentStager interface {
	StageDocuments(ctx context.Context, uploads []service.Upload) ([]domain.Document, error)
}

type DocumentIngester interface {
	Ingest(ctx context.Context, docs []domain.Document) ([]service.IngestResult, error)
	ResetIndex(ctx context.Context) error
}

type DocumentHandler struct {
	stager DocumentStager
	svc    DocumentIngester
}

func NewDocumentHandler(stager DocumentStager, svc DocumentIngester) *DocumentHandler {
	return &DocumentHandler{stager: stager, svc: svc}
}

type DocumentResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Segments int    `json:"segments"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

type UploadResponse struct {
	Indexed   int              `json:"indexed"`
	Failed    int              `json:"failed"`
	Documents []DocumentResult `json:"documents"`
}

const (
	statusIndexed = "indexed"
	statusFailed  = "failed"
)

// Upload indexes every uploaded file. A failing document does not stop the
// others; the request only fails when nothing could be indexed.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	uploads, closeUploads, err := openUploads(r, UploadField)
	defer closeUploads()
	if err != nil {
		api.HandleError(w, err)
		return
	}

	docs, err := h.stager.StageDocuments(r.Context(), uploads)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results, err := h.svc.Ingest(r.Context(), docs)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := UploadResponse{Documents: make([]DocumentResult, 0, len(results))}
	var firstErr error
	for _, res := range results {
		dr := DocumentResult{
			Name:     res.Name,
			Status:   statusIndexed,
			Segments: res.SegmentCount,
			Chunks:   res.ChunkCount,
		}
		if res.Err != nil {
			dr.Status = statusFailed
			dr.Error = res.Err.Error()
			dr.Code = domain.Code(res.Err)
			resp.Failed++
			if firstErr == nil {
				firstErr = res.Err
			}
		} else {
			resp.Indexed++
		}
		resp.Documents = append(resp.Documents, dr)
	}

	if resp.Indexed == 0 && firstErr != nil {
		api.JSON(w, api.DomainErrorToHTTP(firstErr), resp)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

// Reset removes every indexed record.
func (h *DocumentHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetIndex(r.Context()); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "cleared"})
}
