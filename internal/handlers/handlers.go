package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog/hlog"
)

// APIError is the JSON shape of every non-2xx body this service emits.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		hlog.FromRequest(r).Panic().Err(err).Msg("Error sending response to client")
	}
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, r, status, APIError{code, message})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, "not_found", "resource does not exist")
}

func RegisterProfilingHandlers(handler *http.ServeMux, prefix string) {
	handler.HandleFunc(prefix, pprof.Index)
	handler.HandleFunc(prefix+"cmdline", pprof.Cmdline)
	handler.HandleFunc(prefix+"profile", pprof.Profile)
	handler.HandleFunc(prefix+"symbol", pprof.Symbol)
	handler.HandleFunc(prefix+"trace", pprof.Trace)
}
