package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/r2clabs/bulkstudy/internal/api/response"
	"github.com/r2clabs/bulkstudy/internal/reconcile"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Drafts is the draft editing and submission surface.
type Drafts interface {
	LoadDraftsFromTerminalJobs() []models.DraftStudy
	Drafts() []models.DraftStudy
	Draft(id string) (models.DraftStudy, error)
	UpdateField(id, field, value string) (models.DraftStudy, error)
	UpdateGenres(id string, genres []string) (models.DraftStudy, error)
	UpdateQuestion(id string, index int, q models.Question) (models.DraftStudy, error)
	AddQuestion(id string, q models.Question) (models.DraftStudy, error)
	RemoveQuestion(id string, index int) (models.DraftStudy, error)
	SubmitAll(ctx context.Context) (reconcile.SubmitResult, error)
	Discard(ctx context.Context) error
}

// NewLoadDraftsHandler returns an http.HandlerFunc for POST /api/v1/bulk/drafts/load.
func NewLoadDraftsHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, d.LoadDraftsFromTerminalJobs())
	}
}

// NewListDraftsHandler returns an http.HandlerFunc for GET /api/v1/bulk/drafts.
func NewListDraftsHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, d.Drafts())
	}
}

// NewGetDraftHandler returns an http.HandlerFunc for GET /api/v1/bulk/drafts/{draftID}.
func NewGetDraftHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := d.Draft(chi.URLParam(r, "draftID"))
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, draft)
	}
}

// NewPatchDraftHandler returns an http.HandlerFunc for PATCH /api/v1/bulk/drafts/{draftID}.
// The body either sets one scalar field or replaces the genre list.
func NewPatchDraftHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "draftID")

		var req struct {
			Field  string    `json:"field"`
			Value  *string   `json:"value"`
			Genres *[]string `json:"genres"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var (
			draft models.DraftStudy
			err   error
		)
		switch {
		case req.Genres != nil && req.Field == "":
			draft, err = d.UpdateGenres(id, *req.Genres)
		case req.Field != "" && req.Value != nil && req.Genres == nil:
			draft, err = d.UpdateField(id, req.Field, *req.Value)
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Send either field and value, or genres", nil)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, draft)
	}
}

// NewPutQuestionHandler returns an http.HandlerFunc for
// PUT /api/v1/bulk/drafts/{draftID}/questions/{index}.
func NewPutQuestionHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := questionIndex(w, r)
		if !ok {
			return
		}
		q, ok := decodeQuestion(w, r)
		if !ok {
			return
		}
		draft, err := d.UpdateQuestion(chi.URLParam(r, "draftID"), index, q)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, draft)
	}
}

// NewAddQuestionHandler returns an http.HandlerFunc for
// POST /api/v1/bulk/drafts/{draftID}/questions.
func NewAddQuestionHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := decodeQuestion(w, r)
		if !ok {
			return
		}
		draft, err := d.AddQuestion(chi.URLParam(r, "draftID"), q)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, draft)
	}
}

// NewDeleteQuestionHandler returns an http.HandlerFunc for
// DELETE /api/v1/bulk/drafts/{draftID}/questions/{index}.
func NewDeleteQuestionHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := questionIndex(w, r)
		if !ok {
			return
		}
		draft, err := d.RemoveQuestion(chi.URLParam(r, "draftID"), index)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, draft)
	}
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/bulk/submit.
// Partial failures are a normal 200 answer; the body says what failed.
func NewSubmitHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := d.SubmitAll(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewDiscardHandler returns an http.HandlerFunc for POST /api/v1/bulk/discard.
func NewDiscardHandler(d Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Discard(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func questionIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "index must be an integer", nil)
		return 0, false
	}
	return index, true
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (models.Question, bool) {
	var q models.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return models.Question{}, false
	}
	return q, true
}
