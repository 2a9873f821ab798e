package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/clock"
	"attendance.service/internal/core/engine"
	"attendance.service/internal/core/registry"
	"attendance.service/internal/ports/repository"
)

// Handler binds the engine's three operations to HTTP.
type Handler struct {
	Registry  *registry.Registry
	Evaluator *engine.Evaluator
	Roles     repository.RoleProvider
	Clock     clock.Clock
}

type punchRequest struct {
	UserID    string  `json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Reason    string  `json:"reason,omitempty"`
}

type sessionRequest struct {
	ActorID string `json:"actorId"`
	registry.SessionSpec
}

type errorResponse struct {
	Error       string `json:"error"`
	MinutesLeft int    `json:"minutesLeft,omitempty"`
}

func (h *Handler) SubmitPunch(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	result, err := h.Evaluator.SubmitPunch(r.Context(), req.UserID, req.Latitude, req.Longitude, req.Reason, h.Clock.Now())
	if err != nil {
		writePunchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !h.authorizeManage(w, r, req.ActorID) {
		return
	}

	sess, err := h.Registry.Create(r.Context(), req.ActorID, req.SessionSpec)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !h.authorizeManage(w, r, req.ActorID) {
		return
	}

	sess, err := h.Registry.Update(r.Context(), mux.Vars(r)["id"], req.SessionSpec)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actorId")
	role, err := h.Roles.RoleOf(r.Context(), actorID)
	if err != nil {
		http.Error(w, "Role lookup failed", http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if sess, ok := h.Registry.Get(id); ok && !role.CanDelete(sess) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: attendance.ErrForbidden.Error()})
		return
	} else if !ok && !role.CanManageSessions() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: attendance.ErrForbidden.Error()})
		return
	}

	if err := h.Registry.Delete(r.Context(), id); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.ListActive(h.Clock.Now()))
}

func (h *Handler) authorizeManage(w http.ResponseWriter, r *http.Request, actorID string) bool {
	role, err := h.Roles.RoleOf(r.Context(), actorID)
	if err != nil {
		http.Error(w, "Role lookup failed", http.StatusInternalServerError)
		return false
	}
	if !role.CanManageSessions() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: attendance.ErrForbidden.Error()})
		return false
	}
	return true
}

func writePunchError(w http.ResponseWriter, r *http.Request, err error) {
	var wait *attendance.WaitError
	switch {
	case errors.As(err, &wait):
		writeJSON(w, http.StatusConflict, errorResponse{Error: wait.Error(), MinutesLeft: wait.MinutesLeft})
	case errors.Is(err, attendance.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, attendance.ErrNoActiveCheckHere):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, attendance.ErrSessionEnded),
		errors.Is(err, attendance.ErrMustBeInside),
		errors.Is(err, attendance.ErrMustLeaveToExit),
		errors.Is(err, attendance.ErrUnableToRecordPunch):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Punch processing failed")
		http.Error(w, "Service error processing punch", http.StatusInternalServerError)
	}
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, attendance.ErrInvalidSchedule):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Session operation failed")
		http.Error(w, "Service error processing session", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
