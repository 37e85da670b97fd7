package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventRegistrationCreated       = "REGISTRATION_CREATED"
	EventRegistrationStatusChanged = "REGISTRATION_STATUS_CHANGED"
)

// RegistrationEventDto is the lifecycle message published to Kafka and the live feed.
type RegistrationEventDto struct {
	Type           string             `json:"type"`
	RegistrationID uuid.UUID          `json:"registration_id"`
	EventID        string             `json:"event_id"`
	ParticipantID  string             `json:"participant_id"`
	Status         RegistrationStatus `json:"status"`
	PreviousStatus RegistrationStatus `json:"previous_status,omitempty"`
	ActiveCount    int                `json:"active_count"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// NewRegistrationEventDto builds the message, rejecting registration ids that are not UUIDs.
func NewRegistrationEventDto(eventType string, reg *Registration, previous RegistrationStatus, active int) (RegistrationEventDto, error) {
	id, err := uuid.Parse(reg.ID)
	if err != nil {
		return RegistrationEventDto{}, err
	}

	return RegistrationEventDto{
		Type:           eventType,
		RegistrationID: id,
		EventID:        reg.EventID,
		ParticipantID:  reg.ParticipantID,
		Status:         reg.Status,
		PreviousStatus: previous,
		ActiveCount:    active,
		OccurredAt:     time.Now().UTC(),
	}, nil
}
