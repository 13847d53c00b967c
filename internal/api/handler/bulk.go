package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/r2clabs/bulkstudy/internal/api/response"
	"github.com/r2clabs/bulkstudy/internal/r2c"
	"github.com/r2clabs/bulkstudy/internal/reconcile"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// maxUploadMemory is how much of a multipart upload is buffered in memory;
// the rest spills to temp files.
const maxUploadMemory = 32 << 20

// Uploader starts analyses for uploaded documents.
type Uploader interface {
	Upload(ctx context.Context, docs []r2c.Document) (reconcile.UploadResult, error)
}

// Jobs exposes the current batch.
type Jobs interface {
	Jobs() []models.Job
	Summary() models.BatchSummary
	Polling() bool
	ClearAll(ctx context.Context) error
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/bulk/uploads.
// Files come in the multipart field "files".
func NewUploadHandler(u Uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				response.Error(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE",
					"Upload exceeds the size limit", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "files is required", nil)
			return
		}

		docs, closeAll, err := openDocuments(headers)
		defer closeAll()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded file", nil)
			return
		}

		result, err := u.Upload(r.Context(), docs)
		if err != nil {
			if errors.Is(err, reconcile.ErrNoFilesAccepted) {
				response.Error(w, http.StatusUnprocessableEntity, "NO_FILES_ACCEPTED", result.Message, result)
				return
			}
			writeError(w, err)
			return
		}
		response.Accepted(w, result)
	}
}

func openDocuments(headers []*multipart.FileHeader) ([]r2c.Document, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	docs := make([]r2c.Document, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		files = append(files, f)
		docs = append(docs, r2c.Document{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return docs, closeAll, nil
}

type jobsResponse struct {
	Jobs    []models.Job        `json:"jobs"`
	Summary models.BatchSummary `json:"summary"`
	Polling bool                `json:"polling"`
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/bulk/jobs.
func NewListJobsHandler(j Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, jobsResponse{
			Jobs:    j.Jobs(),
			Summary: j.Summary(),
			Polling: j.Polling(),
		})
	}
}

// NewClearJobsHandler returns an http.HandlerFunc for DELETE /api/v1/bulk/jobs.
func NewClearJobsHandler(j Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := j.ClearAll(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
