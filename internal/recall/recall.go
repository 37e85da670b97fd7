// Package recall offers a participant's last cancelled answers as prefill for a new registration.
package recall

import (
	"context"

	"ms-registration/internal/models"
	"ms-registration/internal/registration"
)

// Reader lists the cancelled registrations of one participant for one event.
type Reader interface {
	CancelledRegistrations(ctx context.Context, eventID, participantID string) ([]models.Registration, error)
}

type Recaller struct {
	Store Reader
}

func NewRecaller(store Reader) *Recaller {
	return &Recaller{Store: store}
}

// FindRecallCandidate returns the answers of the most recently registered cancelled
// registration, or ok=false when there is none. The stored record is never touched
// and the returned answers are a copy the caller may edit.
func (r *Recaller) FindRecallCandidate(ctx context.Context, eventID, participantID string) (models.Submission, bool, error) {
	regs, err := r.Store.CancelledRegistrations(ctx, eventID, participantID)
	if err != nil {
		return nil, false, registration.WrapStorage("load cancelled registrations", err)
	}

	latest := Latest(regs)
	if latest == nil {
		return nil, false, nil
	}

	answers := latest.Answers.Clone()
	if answers == nil {
		answers = models.Submission{}
	}
	return answers, true, nil
}

// Latest picks the cancelled registration with the greatest RegisteredAt.
// Ties resolve to the earlier entry in regs.
func Latest(regs []models.Registration) *models.Registration {
	var latest *models.Registration
	for i := range regs {
		reg := &regs[i]
		if reg.Status != models.StatusCancelled {
			continue
		}
		if latest == nil || reg.RegisteredAt.After(latest.RegisteredAt) {
			latest = reg
		}
	}
	return latest
}
