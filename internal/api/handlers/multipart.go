package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
)

// Parts beyond this are spooled to temporary files by net/http.
const multipartMemory int64 = 32 << 20

// parseMultipart parses the form and writes the error response itself when
// that fails.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.HandleError(w, domain.ErrRequestTooLarge)
		return false
	}
	api.HandleError(w, domain.NewDomainErrorWithCause(domain.ErrCodeMalformedRequest, "invalid multipart form", err))
	return false
}

// openUploads opens every file part under field. The returned closer must be
// called once the uploads have been consumed.
func openUploads(r *http.Request, field string) ([]service.Upload, func(), error) {
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File[field]
	}

	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" {
			continue
		}
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, domain.NewDomainErrorWithCause(domain.ErrCodeMalformedRequest,
				"unreadable upload "+fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}

	if len(uploads) == 0 {
		closeAll()
		return nil, func() {}, domain.ErrNoDocuments
	}
	return uploads, closeAll, nil
}
