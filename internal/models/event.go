package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventSettings is the registration-relevant slice of event metadata.
// Capacity 0 means unlimited.
type EventSettings struct {
	bun.BaseModel `bun:"table:event_settings"`

	EventID         string    `bun:"event_id,pk" json:"eventId"`
	Capacity        int       `bun:"capacity,nullzero" json:"capacity"`
	RegistrationFee float64   `bun:"registration_fee,notnull" json:"registrationFee"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// EventSettingsUpdate is published by the event service whenever capacity,
// fee or the form of an event changes. FormFields is nil when the form is untouched.
type EventSettingsUpdate struct {
	EventID         string           `json:"event_id" validate:"required"`
	Capacity        int              `json:"capacity" validate:"gte=0"`
	RegistrationFee float64          `json:"registration_fee" validate:"gte=0"`
	FormFields      []map[string]any `json:"form_fields,omitempty"`
}

type FormResponse struct {
	EventID    string            `json:"eventId"`
	Fields     []FieldDefinition `json:"fields"`
	Duplicates []string          `json:"duplicates,omitempty"`
}
