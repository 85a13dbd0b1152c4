package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/handlers"
	"github.com/accountd/accountd/internal/httpcond"
	"github.com/accountd/accountd/internal/middleware"
	"github.com/accountd/accountd/internal/store"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(user store.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type createRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type updateRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

func RegisterHandler(
	handler *http.ServeMux,
	users *store.Users,
	authenticator *auth.Authenticator,
	fingerprinter *httpcond.Fingerprinter,
	policies httpcond.PolicyTable,
) {
	handler.HandleFunc("POST /v1/users", func(w http.ResponseWriter, r *http.Request) {
		register(w, r, users, fingerprinter, policies)
	})

	handler.HandleFunc(
		"GET /v1/users/{id}",
		authenticator.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			getUser(w, r, users, fingerprinter, policies)
		}),
	)

	handler.HandleFunc(
		"GET /v1/users",
		authenticator.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			listUsers(w, r, users, fingerprinter, policies, httpcond.ClassCollection,
				func() ([]store.User, error) { return users.List() })
		}),
	)

	handler.HandleFunc(
		"GET /v1/users/search",
		authenticator.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query().Get("q")
			if query == "" {
				policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
				handlers.WriteError(
					w, r,
					http.StatusBadRequest,
					"missing_query",
					"the 'q' query parameter is required",
				)
				return
			}
			listUsers(w, r, users, fingerprinter, policies, httpcond.ClassSearchResult,
				func() ([]store.User, error) { return users.Search(query) })
		}),
	)

	handler.HandleFunc(
		"PUT /v1/users/{id}",
		authenticator.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			updateUser(w, r, users, fingerprinter, policies)
		}),
	)

	handler.HandleFunc(
		"DELETE /v1/users/{id}",
		authenticator.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			deleteUser(w, r, users, fingerprinter, policies)
		}),
	)
}

func register(
	w http.ResponseWriter,
	r *http.Request,
	users *store.Users,
	fingerprinter *httpcond.Fingerprinter,
	policies httpcond.PolicyTable,
) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
		handlers.WriteError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
		handlers.WriteError(w, r, http.StatusBadRequest, "invalid_email", "a valid email address is required")
		return
	}
	if len(req.Password) < 8 {
		policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
		handlers.WriteError(
			w, r,
			http.StatusBadRequest,
			"weak_password",
			"the password must be at least 8 characters long",
		)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to hash password")
	}

	entry, err := users.Create(req.Email, req.Name, passwordHash, store.RoleMember)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
			handlers.WriteError(
				w, r,
				http.StatusConflict,
				"email_taken",
				"a user with this email already exists",
			)
			return
		}
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to create user")
	}

	tag := entityTag(r, fingerprinter, entry.Value)
	policies.Apply(w.Header(), httpcond.ClassNoCache, tag, entry.Value.UpdatedAt)
	w.Header().Set("Location", "/v1/users/"+entry.Value.ID)
	handlers.WriteJSON(w, r, http.StatusCreated, toResponse(entry.Value))
}

func getUser(
	w http.ResponseWriter,
	r *http.Request,
	users *store.Users,
	fingerprinter *httpcond.Fingerprinter,
	policies httpcond.PolicyTable,
) {
	entry, err := users.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
			handlers.NotFound(w, r)
			return
		}
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to load user")
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	class := auth.Classify(identity, entry.Value.ID)
	version := entry.Value.ResourceVersion()
	tag := entityTag(r, fingerprinter, entry.Value)

	// Cache headers are attached before the verdict is known: a 304 must
	// still carry the current validators.
	policies.Apply(w.Header(), class, tag, version.LastModified)

	verdict := httpcond.EvaluateRead(
		httpcond.ParseConditional(r.Header),
		tag,
		version.LastModified,
	)
	if !verdict.Proceed() {
		middleware.SetConditionalOutcome(r, middleware.OutcomeNotModified)
		w.WriteHeader(verdict.StatusCode)
		return
	}

	middleware.SetConditionalOutcome(r, middleware.OutcomeFull)
	handlers.WriteJSON(w, r, http.StatusOK, toResponse(entry.Value))
}

func listUsers(
	w http.ResponseWriter,
	r *http.Request,
	users *store.Users,
	fingerprinter *httpcond.Fingerprinter,
	policies httpcond.PolicyTable,
	class httpcond.ResourceClass,
	fetch func() ([]store.User, error),
) {
	list, err := fetch()
	if err != nil {
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to list users")
	}

	// One fingerprint per data fetch, not per header comparison.
	tag, err := fingerprinter.CollectionTag(store.Versions(list))
	if err != nil {
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to compute the collection fingerprint")
	}

	lastModified := time.Time{}
	for _, user := range list {
		if user.UpdatedAt.After(lastModified) {
			lastModified = user.UpdatedAt
		}
	}

	policies.Apply(w.Header(), class, tag, lastModified)

	verdict := httpcond.EvaluateRead(httpcond.ParseConditional(r.Header), tag, lastModified)
	if !verdict.Proceed() {
		middleware.SetConditionalOutcome(r, middleware.OutcomeNotModified)
		w.WriteHeader(verdict.StatusCode)
		return
	}

	middleware.SetConditionalOutcome(r, middleware.OutcomeFull)
	responses := make([]userResponse, 0, len(list))
	for _, user := range list {
		responses = append(responses, toResponse(user))
	}
	handlers.WriteJSON(w, r, http.StatusOK, responses)
}

func updateUser(
	w http.ResponseWriter,
	r *http.Request,
	users *store.Users,
	fingerprinter *httpcond.Fingerprinter,
	policies httpcond.PolicyTable,
) {
	identity, _ := auth.IdentityFromContext(r.Context())

	entry, class, ok := loadForWrite(w, r, users, policies, identity)
	if !ok {
		return
	}

	tag := entityTag(r, fingerprinter, entry.Value)
	verdict := httpcond.CheckPrecondition(httpcond.ParseConditional(r.Header), tag)
	if !verdict.Proceed() {
		writeConflict(w, r, policies, class, tag, entry.Value.UpdatedAt, verdict.Conflict)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
		handlers.WriteError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
			handlers.WriteError(w, r, http.StatusBadRequest, "invalid_email", "a valid email address is required")
			return
		}
		entry.Value.Email = *req.Email
	}
	if req.Name != nil {
		entry.Value.Name = *req.Name
	}
	if req.Password != nil {
		passwordHash, err := auth.HashPassword(*req.Password)
		if err != nil {
			hlog.FromRequest(r).Panic().Err(err).Msg("Unable to hash password")
		}
		entry.Value.PasswordHash = passwordHash
	}

	if err := users.Save(entry); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The record moved between our read and the write. Same answer
			// as a failed precondition: the client must refetch.
			writeConflict(w, r, policies, class, tag, entry.Value.UpdatedAt, &httpcond.ConflictBody{
				Code:    httpcond.ConflictCodeVersionMismatch,
				Message: "resource changed since last read, refetch and retry",
			})
			return
		}
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to save user")
	}

	middleware.SetConditionalOutcome(r, middleware.OutcomeFull)
	newTag := entityTag(r, fingerprinter, entry.Value)
	policies.Apply(w.Header(), class, newTag, entry.Value.UpdatedAt)
	handlers.WriteJSON(w, r, http.StatusOK, toResponse(entry.Value))
}

func deleteUser(
	w http.ResponseWriter,
	r *http.Request,
	users *store.Users,
	fingerprinter *httpcond.Fingerprinter,
	policies httpcond.PolicyTable,
) {
	identity, _ := auth.IdentityFromContext(r.Context())

	entry, class, ok := loadForWrite(w, r, users, policies, identity)
	if !ok {
		return
	}

	tag := entityTag(r, fingerprinter, entry.Value)
	verdict := httpcond.CheckPrecondition(httpcond.ParseConditional(r.Header), tag)
	if !verdict.Proceed() {
		writeConflict(w, r, policies, class, tag, entry.Value.UpdatedAt, verdict.Conflict)
		return
	}

	if err := users.Delete(entry); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeConflict(w, r, policies, class, tag, entry.Value.UpdatedAt, &httpcond.ConflictBody{
				Code:    httpcond.ConflictCodeVersionMismatch,
				Message: "resource changed since last read, refetch and retry",
			})
			return
		}
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to delete user")
	}

	middleware.SetConditionalOutcome(r, middleware.OutcomeFull)
	policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
	w.WriteHeader(http.StatusNoContent)
}

// loadForWrite resolves the target entry and checks that the caller may
// write it: only the owner or an administrator.
func loadForWrite(
	w http.ResponseWriter,
	r *http.Request,
	users *store.Users,
	policies httpcond.PolicyTable,
	identity auth.Identity,
) (*store.Entry[store.User], httpcond.ResourceClass, bool) {
	entry, err := users.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
			handlers.NotFound(w, r)
			return nil, httpcond.ClassNoCache, false
		}
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to load user")
	}

	if entry.Value.ID != identity.UserID && !identity.IsAdmin() {
		policies.Apply(w.Header(), httpcond.ClassNoCache, "", time.Time{})
		handlers.WriteError(
			w, r,
			http.StatusForbidden,
			"forbidden",
			"only the account owner or an administrator may modify this account",
		)
		return nil, httpcond.ClassNoCache, false
	}

	return entry, auth.Classify(identity, entry.Value.ID), true
}

func writeConflict(
	w http.ResponseWriter,
	r *http.Request,
	policies httpcond.PolicyTable,
	class httpcond.ResourceClass,
	tag string,
	lastModified time.Time,
	conflict *httpcond.ConflictBody,
) {
	middleware.SetConditionalOutcome(r, middleware.OutcomePreconditionFailed)
	policies.Apply(w.Header(), class, tag, lastModified)
	handlers.WriteJSON(w, r, http.StatusPreconditionFailed, conflict)
}

func entityTag(r *http.Request, fingerprinter *httpcond.Fingerprinter, user store.User) string {
	tag, err := fingerprinter.EntityTag(user.ResourceVersion())
	if err != nil {
		hlog.FromRequest(r).Panic().Err(err).Msg("Unable to compute the resource fingerprint")
	}
	return tag
}
