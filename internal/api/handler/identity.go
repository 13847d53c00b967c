package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/r2clabs/bulkstudy/internal/api/response"
)

// Session is the signed-in identity used for R2C calls.
type Session interface {
	SignIn(accessToken string, expiresIn time.Duration)
	SignOut()
	SignedIn() bool
}

type identityResponse struct {
	SignedIn bool `json:"signed_in"`
}

// NewGetIdentityHandler returns an http.HandlerFunc for GET /api/v1/identity.
func NewGetIdentityHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, identityResponse{SignedIn: s.SignedIn()})
	}
}

// NewSignInHandler returns an http.HandlerFunc for PUT /api/v1/identity.
// Signing in resumes a batch whose polling paused for lack of identity.
func NewSignInHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AccessToken == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "access_token is required", nil)
			return
		}
		if req.ExpiresIn < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "expires_in must not be negative", nil)
			return
		}

		s.SignIn(req.AccessToken, time.Duration(req.ExpiresIn)*time.Second)
		response.JSON(w, identityResponse{SignedIn: true})
	}
}

// NewSignOutHandler returns an http.HandlerFunc for DELETE /api/v1/identity.
func NewSignOutHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.SignOut()
		w.WriteHeader(http.StatusNoContent)
	}
}
