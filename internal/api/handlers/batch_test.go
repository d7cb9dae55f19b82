package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestBatchHandler_Query_Success(t *testing.T) {
	stager := new(MockDocumentStager)
	archiver := new(MockBatchArchiver)
	handler := NewBatchHandler(stager, archiver)

	docs := []domain.Document{
		{Name: "a.txt", MediaType: domain.MediaTypeText, Content: []byte("alpha")},
		{Name: "b.txt", MediaType: domain.MediaTypeText, Content: []byte("beta")},
	}
	stager.On("StageDocuments", mock.Anything, mock.MatchedBy(func(u []service.Upload) bool {
		return len(u) == 2
	})).Return(docs, nil)
	archiver.On("Archive", mock.Anything, service.BatchInput{Instruction: "Summarize", Documents: docs}).
		Return([]byte("PK\x03\x04zip"), nil)

	req := multipartRequest(t, "/batch_file_query", map[string]string{BatchPromptField: "Summarize"}, BatchFilesField,
		testFile{name: "a.txt", content: "alpha"},
		testFile{name: "b.txt", content: "beta"},
	)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="BatchQueryResponses.zip"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK\x03\x04zip", w.Body.String())
	stager.AssertExpectations(t)
	archiver.AssertExpectations(t)
}

func TestBatchHandler_Query_MissingPrompt(t *testing.T) {
	stager := new(MockDocumentStager)
	archiver := new(MockBatchArchiver)
	handler := NewBatchHandler(stager, archiver)

	req := multipartRequest(t, "/batch_file_query", map[string]string{BatchPromptField: "  "}, BatchFilesField,
		testFile{name: "a.txt", content: "alpha"},
	)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "instruction is required")
	stager.AssertNotCalled(t, "StageDocuments", mock.Anything, mock.Anything)
}

func TestBatchHandler_Query_NoFiles(t *testing.T) {
	stager := new(MockDocumentStager)
	handler := NewBatchHandler(stager, new(MockBatchArchiver))

	req := multipartRequest(t, "/batch_file_query", map[string]string{BatchPromptField: "Summarize"}, BatchFilesField)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "at least one document")
}

func TestBatchHandler_Query_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"context too large", domain.NewDomainError(domain.ErrCodeContextTooLarge, `document "a.txt" has 30000 characters, limit is 24000`), http.StatusRequestEntityTooLarge},
		{"extraction failure", domain.NewDomainError(domain.ErrCodeExtractionFailure, "no text layer"), http.StatusUnprocessableEntity},
		{"unsupported format", domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"generation failure", domain.ErrGenerationFailure, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stager := new(MockDocumentStager)
			archiver := new(MockBatchArchiver)
			handler := NewBatchHandler(stager, archiver)

			stager.On("StageDocuments", mock.Anything, mock.Anything).Return([]domain.Document{{Name: "a.txt"}}, nil)
			archiver.On("Archive", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := multipartRequest(t, "/batch_file_query", map[string]string{BatchPromptField: "Summarize"}, BatchFilesField,
				testFile{name: "a.txt", content: "alpha"},
			)
			w := httptest.NewRecorder()

			handler.Query(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}
