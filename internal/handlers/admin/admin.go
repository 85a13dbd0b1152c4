package admin

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/accountd/accountd/internal/handlers"
	"github.com/accountd/accountd/internal/httpcond"
	"github.com/accountd/accountd/internal/store"
)

type statistics struct {
	Users  int `json:"users"`
	Admins int `json:"admins"`
}

// RegisterHandler wires the admin surface: operational statistics and a raw
// account listing. The admin listener is expected to be bound to a loopback
// or otherwise trusted interface, there is no token check here.
func RegisterHandler(
	handler *http.ServeMux,
	users *store.Users,
	policies httpcond.PolicyTable,
) {
	handler.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List()
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("unable to gather statistics")
			policies.Apply(w.Header(), httpcond.ClassAdministrative, "", time.Time{})
			handlers.WriteError(w, r, http.StatusInternalServerError, "internal", "unable to gather statistics")
			return
		}

		stats := statistics{Users: len(list)}
		for _, user := range list {
			if user.Role == store.RoleAdmin {
				stats.Admins++
			}
		}

		policies.Apply(w.Header(), httpcond.ClassAdministrative, "", time.Time{})
		handlers.WriteJSON(w, r, http.StatusOK, stats)
	})

	handler.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List()
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("unable to list users")
			policies.Apply(w.Header(), httpcond.ClassAdministrative, "", time.Time{})
			handlers.WriteError(w, r, http.StatusInternalServerError, "internal", "unable to list users")
			return
		}

		type adminUser struct {
			ID        string    `json:"id"`
			Email     string    `json:"email"`
			Name      string    `json:"name"`
			Role      string    `json:"role"`
			CreatedAt time.Time `json:"created_at"`
			UpdatedAt time.Time `json:"updated_at"`
		}

		response := make([]adminUser, 0, len(list))
		for _, user := range list {
			response = append(response, adminUser{
				user.ID, user.Email, user.Name, user.Role, user.CreatedAt, user.UpdatedAt,
			})
		}

		policies.Apply(w.Header(), httpcond.ClassAdministrative, "", time.Time{})
		handlers.WriteJSON(w, r, http.StatusOK, response)
	})
}
