package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
)

// Multipart fields of a batch query
const (
	BatchPromptField = "user_prompt"
	BatchFilesField  = "uploaded_files"
)

type BatchArchiver interface {
	Archive(ctx context.Context, in service.BatchInput) ([]byte, error)
}

type BatchHandler struct {
	stager DocumentStager
	svc    BatchArchiver
}

func NewBatchHandler(stager DocumentStager, svc BatchArchiver) *BatchHandler {
	return &BatchHandler{stager: stager, svc: svc}
}

// Query applies user_prompt to each uploaded file and returns the answers
// as a zip archive.
func (h *BatchHandler) Query(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	instruction := r.FormValue(BatchPromptField)
	if strings.TrimSpace(instruction) == "" {
		api.HandleError(w, domain.ErrMissingInstruction)
		return
	}

	uploads, closeUploads, err := openUploads(r, BatchFilesField)
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

	archive, err := h.svc.Archive(r.Context(), service.BatchInput{
		Instruction: instruction,
		Documents:   docs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.ArchiveName))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive); err != nil {
		log.Printf("batch: failed to write archive: %v", err)
	}
}
