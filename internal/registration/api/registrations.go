package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/models"
	"ms-registration/internal/utils"
	"ms-registration/internal/validator"
)

type recallResponse struct {
	Found   bool              `json:"found"`
	Answers models.Submission `json:"answers,omitempty"`
}

// Submit registers the caller for the event.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Submit: eventId=%s participant=%s", eventID, userID))

	var req models.SubmitRequest
	if !h.decode(w, r, "Submit", &req) {
		return
	}

	reg, err := h.Registrations.Submit(r.Context(), eventID, userID, req.Answers)
	if err != nil {
		h.writeError(w, "Submit", err)
		return
	}
	h.respond(w, http.StatusCreated, utils.SuccessResponse("Registration created", reg))
}

func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	active, err := h.Registrations.ActiveCount(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "Count", err)
		return
	}
	settings, err := h.Events.Settings(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "Count", err)
		return
	}

	h.respond(w, http.StatusOK, utils.SuccessResponse("Active registrations counted", models.CountResponse{
		EventID:  eventID,
		Active:   active,
		Capacity: settings.Capacity,
	}))
}

// RecallAnswers offers the caller's last cancelled answers as a prefill.
func (h *Handler) RecallAnswers(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	answers, found, err := h.Recall.FindRecallCandidate(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, "RecallAnswers", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Recall lookup done", recallResponse{Found: found, Answers: answers}))
}

// GetRegistration is visible to its participant and to the event organizers.
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	reg, err := h.Registrations.Get(r.Context(), registrationID)
	if err != nil {
		h.writeError(w, "GetRegistration", err)
		return
	}
	if reg.ParticipantID != userID && !h.requireOrganizer(w, r, reg.EventID) {
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Registration retrieved", reg))
}

// SetStatus is the organizer path; participants cancel through CancelBySelf.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")
	h.Logger.Info("API", fmt.Sprintf("SetStatus: registrationId=%s", registrationID))

	var req models.StatusUpdateRequest
	if !h.decode(w, r, "SetStatus", &req) {
		return
	}
	if err := validator.Validate(r.Context(), req); err != nil {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid status", err.Error()))
		return
	}

	reg, err := h.Registrations.Get(r.Context(), registrationID)
	if err != nil {
		h.writeError(w, "SetStatus", err)
		return
	}
	if !h.requireOrganizer(w, r, reg.EventID) {
		return
	}

	updated, err := h.Registrations.SetStatus(r.Context(), registrationID, req.Status)
	if err != nil {
		h.writeError(w, "SetStatus", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Status updated", updated))
}

func (h *Handler) CancelBySelf(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelBySelf: registrationId=%s participant=%s", registrationID, userID))

	reg, err := h.Registrations.CancelBySelf(r.Context(), registrationID, userID)
	if err != nil {
		h.writeError(w, "CancelBySelf", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Registration cancelled", reg))
}
