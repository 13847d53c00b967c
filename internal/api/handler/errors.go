package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/r2clabs/bulkstudy/internal/api/response"
	"github.com/r2clabs/bulkstudy/internal/bulk"
	"github.com/r2clabs/bulkstudy/internal/identity"
	"github.com/r2clabs/bulkstudy/internal/r2c"
	"github.com/r2clabs/bulkstudy/internal/reconcile"
)

// writeError maps service errors onto the error envelope.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcile.ErrDraftNotFound):
		response.Error(w, http.StatusNotFound, "DRAFT_NOT_FOUND", "Draft not found", nil)
	case errors.Is(err, reconcile.ErrDraftNotEditable):
		response.Error(w, http.StatusConflict, "DRAFT_NOT_EDITABLE",
			"Only analyzed drafts can be edited", nil)
	case errors.Is(err, reconcile.ErrQuestionIndex):
		response.Error(w, http.StatusNotFound, "QUESTION_NOT_FOUND", "Question index out of range", nil)
	case errors.Is(err, reconcile.ErrUnknownField):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"field must be one of title, abstract, brief_description", nil)
	case errors.Is(err, reconcile.ErrNothingToSubmit):
		response.Error(w, http.StatusConflict, "NOTHING_TO_SUBMIT", "No draft is ready to submit", nil)
	case errors.Is(err, reconcile.ErrSubmitInProgress):
		response.Error(w, http.StatusConflict, "SUBMIT_IN_PROGRESS", "A submission is already running", nil)
	case errors.Is(err, reconcile.ErrBatchInProgress):
		response.Error(w, http.StatusConflict, "BATCH_IN_PROGRESS",
			"Wait for every analysis to finish before submitting", nil)
	case errors.Is(err, bulk.ErrEmptyBatch):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "At least one file is required", nil)
	case errors.Is(err, identity.ErrNoIdentity):
		response.Error(w, http.StatusUnauthorized, "NO_IDENTITY", "Sign in to continue", nil)
	case errors.Is(err, r2c.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "R2C_TIMEOUT", "The R2C API did not answer in time", nil)
	case errors.Is(err, r2c.ErrUnreachable):
		response.Error(w, http.StatusBadGateway, "R2C_UNAVAILABLE", "The R2C API is not reachable", nil)
	default:
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
