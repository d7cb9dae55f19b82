package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type uploadEnvelope struct {
	Data UploadResponse `json:"data"`
}

func TestDocumentHandler_Upload_Success(t *testing.T) {
	stager := new(MockDocumentStager)
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(stager, ingester)

	docs := []domain.Document{
		{Name: "a.txt", MediaType: domain.MediaTypeText, Content: []byte("alpha")},
		{Name: "b.txt", MediaType: domain.MediaTypeText, Content: []byte("beta")},
	}
	stager.On("StageDocuments", mock.Anything, mock.MatchedBy(func(u []service.Upload) bool {
		return len(u) == 2 && u[0].Name == "a.txt" && u[1].Name == "b.txt" && u[0].ContentType == "text/plain"
	})).Return(docs, nil)
	ingester.On("Ingest", mock.Anything, docs).Return([]service.IngestResult{
		{Name: "a.txt", SegmentCount: 1, ChunkCount: 2},
		{Name: "b.txt", SegmentCount: 1, ChunkCount: 1},
	}, nil)

	req := multipartRequest(t, "/upload_documents", nil, UploadField,
		testFile{name: "a.txt", contentType: "text/plain", content: "alpha"},
		testFile{name: "b.txt", contentType: "text/plain", content: "beta"},
	)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp uploadEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Indexed)
	assert.Equal(t, 0, resp.Data.Failed)
	require.Len(t, resp.Data.Documents, 2)
	assert.Equal(t, "indexed", resp.Data.Documents[0].Status)
	assert.Equal(t, 2, resp.Data.Documents[0].Chunks)
	stager.AssertExpectations(t)
	ingester.AssertExpectations(t)
}

func TestDocumentHandler_Upload_PartialFailure(t *testing.T) {
	stager := new(MockDocumentStager)
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(stager, ingester)

	docs := []domain.Document{{Name: "ok.txt"}, {Name: "scan.pdf"}}
	stager.On("StageDocuments", mock.Anything, mock.Anything).Return(docs, nil)
	ingester.On("Ingest", mock.Anything, docs).Return([]service.IngestResult{
		{Name: "ok.txt", SegmentCount: 1, ChunkCount: 1},
		{Name: "scan.pdf", Err: domain.NewDomainError(domain.ErrCodeExtractionFailure, "no text layer")},
	}, nil)

	req := multipartRequest(t, "/upload_documents", nil, UploadField,
		testFile{name: "ok.txt", content: "fine"},
		testFile{name: "scan.pdf", content: "%PDF-1.4"},
	)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp uploadEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Indexed)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Equal(t, "failed", resp.Data.Documents[1].Status)
	assert.Equal(t, domain.ErrCodeExtractionFailure, resp.Data.Documents[1].Code)
}

func TestDocumentHandler_Upload_AllFailed(t *testing.T) {
	stager := new(MockDocumentStager)
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(stager, ingester)

	docs := []domain.Document{{Name: "slides.pptx"}}
	stager.On("StageDocuments", mock.Anything, mock.Anything).Return(docs, nil)
	ingester.On("Ingest", mock.Anything, docs).Return([]service.IngestResult{
		{Name: "slides.pptx", Err: domain.ErrUnsupportedFormat},
	}, nil)

	req := multipartRequest(t, "/upload_documents", nil, UploadField,
		testFile{name: "slides.pptx", content: "PK"},
	)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Failed)
}

func TestDocumentHandler_Upload_NoFiles(t *testing.T) {
	stager := new(MockDocumentStager)
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(stager, ingester)

	req := multipartRequest(t, "/upload_documents", map[string]string{"note": "x"}, UploadField)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	stager.AssertNotCalled(t, "StageDocuments", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Upload_NotMultipart(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentStager), new(MockDocumentIngester))

	req := httptest.NewRequest(http.MethodPost, "/upload_documents", strings.NewReader(`{"file":"a.txt"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid multipart form")
}

func TestDocumentHandler_Upload_TooLarge(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentStager), new(MockDocumentIngester))

	req := multipartRequest(t, "/upload_documents", nil, UploadField,
		testFile{name: "big.txt", content: strings.Repeat("x", 4096)},
	)
	w := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(w, req.Body, 512)

	handler.Upload(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDocumentHandler_Upload_StagingFailure(t *testing.T) {
	stager := new(MockDocumentStager)
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(stager, ingester)

	stager.On("StageDocuments", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to stage a.txt", assert.AnError))

	req := multipartRequest(t, "/upload_documents", nil, UploadField, testFile{name: "a.txt", content: "a"})
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	ingester.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Reset(t *testing.T) {
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(new(MockDocumentStager), ingester)

	ingester.On("ResetIndex", mock.Anything).Return(nil).Once()

	w := httptest.NewRecorder()
	handler.Reset(w, httptest.NewRequest(http.MethodPost, "/clear_db", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"status":"cleared"}}`, w.Body.String())
	ingester.AssertExpectations(t)
}

func TestDocumentHandler_Reset_Failure(t *testing.T) {
	ingester := new(MockDocumentIngester)
	handler := NewDocumentHandler(new(MockDocumentStager), ingester)

	ingester.On("ResetIndex", mock.Anything).
		Return(domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to reset index", assert.AnError))

	w := httptest.NewRecorder()
	handler.Reset(w, httptest.NewRequest(http.MethodDelete, "/index", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
