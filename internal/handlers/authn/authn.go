package authn

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/handlers"
	"github.com/accountd/accountd/internal/httpcond"
	"github.com/accountd/accountd/internal/store"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

func RegisterHandler(
	handler *http.ServeMux,
	users *store.Users,
	authenticator *auth.Authenticator,
	policies httpcond.PolicyTable,
) {
	handler.HandleFunc("POST /v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		// Token responses are never cacheable, whatever the outcome.
		policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})

		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			handlers.WriteError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
			return
		}

		entry, err := users.FindByEmail(req.Email)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				rejectCredentials(w, r)
				return
			}
			hlog.FromRequest(r).Panic().Err(err).Msg("Unable to look up user")
		}

		if !auth.VerifyPassword(entry.Value.PasswordHash, req.Password) {
			rejectCredentials(w, r)
			return
		}

		token, expiresAt, err := authenticator.Issue(entry.Value.ID, entry.Value.Role)
		if err != nil {
			hlog.FromRequest(r).Panic().Err(err).Msg("Unable to issue token")
		}

		handlers.WriteJSON(w, r, http.StatusOK, tokenResponse{token, expiresAt, entry.Value.ID})
	})
}

func rejectCredentials(w http.ResponseWriter, r *http.Request) {
	// Same answer for unknown email and wrong password
	handlers.WriteError(
		w, r,
		http.StatusUnauthorized,
		"invalid_credentials",
		"email or password is incorrect",
	)
}
