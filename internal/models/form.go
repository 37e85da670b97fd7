package models

import "github.com/uptrace/bun"

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldFile     FieldType = "file"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldEmail, FieldNumber, FieldTextarea, FieldSelect, FieldFile:
		return true
	}
	return false
}

// FieldDefinition is one organizer-authored question of an event's registration form.
// Position records insertion order and breaks OrderIndex ties.
type FieldDefinition struct {
	bun.BaseModel `bun:"table:event_form_fields"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id,omitempty"`
	EventID    string    `bun:"event_id,notnull" json:"eventId,omitempty"`
	FieldName  string    `bun:"field_name,notnull" json:"fieldName" validate:"required"`
	FieldType  FieldType `bun:"field_type,notnull" json:"fieldType" validate:"field_type"`
	IsRequired bool      `bun:"is_required,notnull" json:"isRequired"`
	Options    []string  `bun:"options,type:jsonb" json:"options,omitempty"`
	OrderIndex int       `bun:"order_index,notnull" json:"orderIndex"`
	Position   int       `bun:"position,notnull" json:"-"`
}

// Submission maps a field name to the participant's answer.
type Submission map[string]any

// Clone returns a deep copy so callers can edit prefilled answers freely.
func (s Submission) Clone() Submission {
	if s == nil {
		return nil
	}
	out := make(Submission, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = cloneValue(item)
		}
		return list
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
