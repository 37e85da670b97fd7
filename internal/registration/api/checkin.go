package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/utils"
	"ms-registration/internal/validator"
)

type checkInRequest struct {
	EventID string `json:"eventId" validate:"required"`
	Token   string `json:"token" validate:"required"`
}

// Pass streams the caller's QR check-in pass as a PNG.
func (h *Handler) Pass(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if h.Desk == nil {
		h.respond(w, http.StatusNotImplemented, utils.ErrorResponse("Check-in passes are not enabled", "no check-in secret configured"))
		return
	}

	png, err := h.Desk.PassFor(r.Context(), registrationID, userID)
	if err != nil {
		h.writeError(w, "Pass", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Pass: failed to write image: %v", err))
	}
}

// CheckIn redeems a scanned pass at the door.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if h.Desk == nil {
		h.respond(w, http.StatusNotImplemented, utils.ErrorResponse("Check-in is not enabled", "no check-in secret configured"))
		return
	}

	var req checkInRequest
	if !h.decode(w, r, "CheckIn", &req) {
		return
	}
	if err := validator.Validate(r.Context(), req); err != nil {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Bad request", err.Error()))
		return
	}
	if !h.requireOrganizer(w, r, req.EventID) {
		return
	}

	reg, err := h.Desk.CheckIn(r.Context(), req.EventID, req.Token)
	if err != nil {
		h.writeError(w, "CheckIn", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Checked in", reg))
}
