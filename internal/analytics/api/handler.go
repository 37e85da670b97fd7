package analytics_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/analytics"
	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
	"ms-registration/internal/validator"
)

const maxBatchEvents = 50

type OwnershipChecker interface {
	VerifyEventOwnership(ctx context.Context, eventID, userID string) (bool, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Owners  OwnershipChecker // optional
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, owners OwnershipChecker, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Owners: owners, Logger: logger}
}

// RegisterRoutes registers the analytics routes under /analytics of the given router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/events/{eventId}", h.GetEventAnalytics)
		r.Get("/events/{eventId}/registrations", h.GetEventRegistrations)
		r.Post("/events/batch", h.GetBatchEventAnalytics)
	})
}

func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	// nothing left to report to the client once encoding fails mid-body
	_ = utils.WriteJSON(w, status, data)
}

// authorize → true when the caller organizes every listed event
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, eventIDs ...string) bool {
	userID := auth.UserID(r.Context())
	if userID == "" {
		sendJSONResponse(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user"))
		return false
	}
	if h.Owners == nil {
		return true
	}

	for _, eventID := range eventIDs {
		isOwner, err := h.Owners.VerifyEventOwnership(r.Context(), eventID, userID)
		if err != nil {
			h.Logger.Error("ANALYTICS", fmt.Sprintf("Ownership verification failed for event %s: %v", eventID, err))
			sendJSONResponse(w, http.StatusServiceUnavailable, utils.ErrorResponse("Ownership check unavailable", err.Error()))
			return false
		}
		if !isOwner {
			h.Logger.LogSecurity("ANALYTICS_DENIED", fmt.Sprintf("user %s requested analytics of event %s", userID, eventID))
			sendJSONResponse(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "not an organizer of event "+eventID))
			return false
		}
	}
	return true
}

// GetEventAnalytics handles GET /events/{eventId}
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if !h.authorize(w, r, eventID) {
		return
	}

	result, err := h.Service.GetEventAnalytics(r.Context(), eventID)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to get analytics for event %s: %v", eventID, err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get analytics", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Event analytics retrieved", result))
}

// GetEventRegistrations handles GET /events/{eventId}/registrations?status=&sort_by=&sort_desc=&limit=&offset=
func (h *Handler) GetEventRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if !h.authorize(w, r, eventID) {
		return
	}

	opts, err := parseRegistrationOptions(r)
	if err == nil {
		err = validator.Validate(r.Context(), opts)
	}
	if err != nil {
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid query parameters", err.Error()))
		return
	}

	regs, err := h.Service.GetEventRegistrations(r.Context(), eventID, opts)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to list registrations for event %s: %v", eventID, err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to list registrations", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Registrations retrieved", regs))
}

type batchRequest struct {
	EventIDs []string `json:"event_ids" validate:"required,min=1,max=50,dive,required"`
}

// GetBatchEventAnalytics handles POST /events/batch
func (h *Handler) GetBatchEventAnalytics(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if err := validator.Validate(r.Context(), req); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", fmt.Sprintf("%v (at most %d events)", err, maxBatchEvents)))
		return
	}
	if !h.authorize(w, r, req.EventIDs...) {
		return
	}

	summaries, err := h.Service.GetBatchSummaries(r.Context(), req.EventIDs)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Batch analytics failed: %v", err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get analytics", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Batch analytics retrieved", summaries))
}

func parseRegistrationOptions(r *http.Request) (analytics.RegistrationOptions, error) {
	q := r.URL.Query()
	opts := analytics.RegistrationOptions{
		Status: models.RegistrationStatus(q.Get("status")),
		SortBy: analytics.SortField(q.Get("sort_by")),
	}

	if v := q.Get("sort_desc"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("sort_desc: %w", err)
		}
		opts.SortDesc = b
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}
	return opts, nil
}
