package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/models"
	"ms-registration/internal/submission"
	"ms-registration/internal/utils"
)

type formRequest struct {
	Fields []map[string]any `json:"fields"`
}

func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("GetForm: eventId=%s", eventID))

	fields, err := h.Events.Form(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "GetForm", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Form retrieved", models.FormResponse{EventID: eventID, Fields: fields}))
}

// PutForm replaces the form with organizer input in any supported key spelling.
func (h *Handler) PutForm(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("PutForm: eventId=%s", eventID))

	if !h.requireOrganizer(w, r, eventID) {
		return
	}

	var req formRequest
	if !h.decode(w, r, "PutForm", &req) {
		return
	}

	resp, err := h.Events.SaveForm(r.Context(), eventID, req.Fields)
	if err != nil {
		h.writeError(w, "PutForm", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Form saved", resp))
}

// ValidateSubmission checks answers against the form without registering.
func (h *Handler) ValidateSubmission(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var req models.SubmitRequest
	if !h.decode(w, r, "ValidateSubmission", &req) {
		return
	}

	fields, err := h.Events.Form(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "ValidateSubmission", err)
		return
	}

	res := submission.Validate(fields, req.Answers)
	h.Logger.Debug("API", fmt.Sprintf("ValidateSubmission: eventId=%s ok=%t missing=%v", eventID, res.OK, res.MissingFields))
	h.respond(w, http.StatusOK, utils.SuccessResponse("Submission checked", res))
}
