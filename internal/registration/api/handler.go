package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/auth"
	"ms-registration/internal/checkin"
	"ms-registration/internal/events"
	"ms-registration/internal/export"
	"ms-registration/internal/logger"
	"ms-registration/internal/recall"
	"ms-registration/internal/registration"
	"ms-registration/internal/sse"
	"ms-registration/internal/utils"
)

// OwnershipChecker decides whether a user organizes an event.
type OwnershipChecker interface {
	VerifyEventOwnership(ctx context.Context, eventID, userID string) (bool, error)
}

type Handler struct {
	Registrations *registration.Service
	Events        *events.Service
	Recall        *recall.Recaller
	Export        *export.Service
	Desk          *checkin.Desk         // optional
	Sheets        export.Sink           // optional
	Feed          *sse.RegistrationFeed // optional
	Owners        OwnershipChecker      // optional, nil allows every organizer action
	Logger        *logger.Logger
}

// Routes registers the registration endpoints; the caller mounts them under /api/registration.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/events/{eventId}", func(r chi.Router) {
		r.Get("/form", h.GetForm)
		r.Put("/form", h.PutForm)
		r.Post("/validate", h.ValidateSubmission)
		r.Post("/registrations", h.Submit)
		r.Get("/registrations/count", h.Count)
		r.Get("/recall", h.RecallAnswers)
		r.Get("/export.csv", h.ExportCSV)
		r.Post("/export/sheets", h.ExportSheets)
		r.Get("/live", h.Live)
	})

	r.Route("/registrations/{registrationId}", func(r chi.Router) {
		r.Get("/", h.GetRegistration)
		r.Put("/status", h.SetStatus)
		r.Delete("/", h.CancelBySelf)
		r.Get("/pass", h.Pass)
	})

	r.Post("/checkin", h.CheckIn)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("%s: failed to decode request body: %v", op, err))
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload any) {
	if err := utils.WriteJSON(w, status, payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// currentUser → subject of the bearer token, or a 401 when it is missing
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		h.respond(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user"))
		return "", false
	}
	return userID, true
}

// requireOrganizer writes 403 (or 503 when the event service is down) unless
// the caller organizes eventID.
func (h *Handler) requireOrganizer(w http.ResponseWriter, r *http.Request, eventID string) bool {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return false
	}
	if h.Owners == nil {
		return true
	}

	isOwner, err := h.Owners.VerifyEventOwnership(r.Context(), eventID, userID)
	if err != nil {
		h.Logger.Error("AUTH", fmt.Sprintf("Ownership check for event %s failed: %v", eventID, err))
		h.respond(w, http.StatusServiceUnavailable, utils.ErrorResponse("Ownership check unavailable", err.Error()))
		return false
	}
	if !isOwner {
		h.Logger.LogSecurity("NOT_ORGANIZER", fmt.Sprintf("user %s is not an organizer of event %s", userID, eventID))
		h.respond(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "not an organizer of this event"))
		return false
	}
	return true
}

// writeError maps domain errors to HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var (
		validationErr *registration.ValidationError
		registeredErr *registration.AlreadyRegisteredError
	)

	switch {
	case errors.As(err, &validationErr):
		h.respond(w, http.StatusUnprocessableEntity, utils.ErrorResponseWithData("Validation failed", err.Error(),
			map[string]any{"missing_fields": validationErr.MissingFields}))
	case errors.As(err, &registeredErr):
		h.respond(w, http.StatusConflict, utils.ErrorResponseWithData("Already registered", err.Error(),
			map[string]any{"registration_id": registeredErr.RegistrationID}))
	case errors.Is(err, registration.ErrCapacityExceeded):
		h.respond(w, http.StatusConflict, utils.ErrorResponse("Event is full", "event_full"))
	case errors.Is(err, registration.ErrInvalidTransition),
		errors.Is(err, registration.ErrInvalidInput),
		errors.Is(err, events.ErrInvalidForm),
		errors.Is(err, checkin.ErrInvalidPass),
		errors.Is(err, checkin.ErrWrongEvent):
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Bad request", err.Error()))
	case errors.Is(err, registration.ErrForbidden), errors.Is(err, checkin.ErrNotOwner):
		h.respond(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", err.Error()))
	case errors.Is(err, registration.ErrNotFound):
		h.respond(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case errors.Is(err, checkin.ErrCancelled):
		h.respond(w, http.StatusConflict, utils.ErrorResponse("Registration cancelled", err.Error()))
	case errors.Is(err, registration.ErrLockContended):
		w.Header().Set("Retry-After", "1")
		h.respond(w, http.StatusServiceUnavailable, utils.ErrorResponse("Event busy, try again", err.Error()))
	case errors.Is(err, registration.ErrStorageUnavailable):
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		h.respond(w, http.StatusServiceUnavailable, utils.ErrorResponse("Storage unavailable", err.Error()))
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		h.respond(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
	}
}
