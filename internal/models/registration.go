package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "registered"
	StatusAttended   RegistrationStatus = "attended"
	StatusCancelled  RegistrationStatus = "cancelled"
)

func (s RegistrationStatus) Valid() bool {
	return s == StatusRegistered || s == StatusAttended || s == StatusCancelled
}

// Active reports whether the registration consumes a capacity unit.
func (s RegistrationStatus) Active() bool {
	return s != StatusCancelled
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID            string             `bun:"id,pk" json:"id"`
	EventID       string             `bun:"event_id,notnull" json:"eventId"`
	ParticipantID string             `bun:"participant_id,notnull" json:"participantId"`
	Status        RegistrationStatus `bun:"status,notnull" json:"status"`
	Answers       Submission         `bun:"answers,type:jsonb" json:"answers"`
	RegisteredAt  time.Time          `bun:"registered_at,notnull" json:"registeredAt"`
	UpdatedAt     time.Time          `bun:"updated_at,notnull" json:"updatedAt"`
}

type SubmitRequest struct {
	Answers Submission `json:"answers"`
}

type StatusUpdateRequest struct {
	Status RegistrationStatus `json:"status" validate:"required,registration_status"`
}

type CountResponse struct {
	EventID  string `json:"eventId"`
	Active   int    `json:"active"`
	Capacity int    `json:"capacity"`
}
