package checkin

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

var ErrWrongEvent = errors.New("pass belongs to a different event")

// Registrations is the slice of the registration service the desk needs.
type Registrations interface {
	Get(ctx context.Context, id string) (*models.Registration, error)
	SetStatus(ctx context.Context, id string, to models.RegistrationStatus) (*models.Registration, error)
}

// Desk redeems passes by marking the registration attended.
type Desk struct {
	Passes        *PassIssuer
	Registrations Registrations
	Logger        *logger.Logger
}

func NewDesk(passes *PassIssuer, regs Registrations, log *logger.Logger) *Desk {
	return &Desk{Passes: passes, Registrations: regs, Logger: log}
}

// PassFor returns the QR PNG for a registration, which must belong to participantID.
func (d *Desk) PassFor(ctx context.Context, registrationID, participantID string) ([]byte, error) {
	reg, err := d.Registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != participantID {
		return nil, ErrNotOwner
	}
	if reg.Status == models.StatusCancelled {
		return nil, ErrCancelled
	}
	return d.Passes.QRCode(reg)
}

// CheckIn opens the token and moves the registration to attended.
// Scanning the same pass twice is harmless.
func (d *Desk) CheckIn(ctx context.Context, eventID, token string) (*models.Registration, error) {
	pass, err := d.Passes.Open(token)
	if err != nil {
		d.Logger.LogSecurity("CHECKIN_REJECTED", fmt.Sprintf("unreadable pass presented for event %s", eventID))
		return nil, err
	}
	if pass.EventID != eventID {
		d.Logger.LogSecurity("CHECKIN_REJECTED", fmt.Sprintf("pass for event %s presented at event %s", pass.EventID, eventID))
		return nil, ErrWrongEvent
	}

	reg, err := d.Registrations.SetStatus(ctx, pass.RegistrationID, models.StatusAttended)
	if err != nil {
		return nil, err
	}

	d.Logger.LogRegistration("CHECKIN", reg.ID, fmt.Sprintf("participant %s attended event %s", reg.ParticipantID, eventID))
	return reg, nil
}

var (
	ErrNotOwner  = errors.New("registration belongs to another participant")
	ErrCancelled = errors.New("registration is cancelled")
)
