package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"attendance.service/internal/api/handler"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(h *handler.Handler) *mux.Router {

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/punch", h.SubmitPunch).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.ListActiveSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.UpdateSession).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	return r
}
