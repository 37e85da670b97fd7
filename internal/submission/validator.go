// Package submission checks a participant's answers against an event's form.
package submission

import (
	"reflect"
	"strings"

	"ms-registration/internal/models"
	"ms-registration/internal/schema"
	"ms-registration/internal/utils"
)

// Result of validating one submission. MissingFields follows form order.
type Result struct {
	OK            bool     `json:"ok"`
	MissingFields []string `json:"missingFields,omitempty"`
}

// Validate reports every required field the answers leave empty.
// Optional fields never block, select values are not checked against their
// options and numbers are not range-checked.
func Validate(fields []models.FieldDefinition, answers models.Submission) Result {
	var missing []string
	for _, f := range schema.SortedFields(fields) {
		if !f.IsRequired {
			continue
		}
		if !present(f, answers[f.FieldName]) {
			missing = append(missing, f.FieldName)
		}
	}

	if len(missing) > 0 {
		return Result{OK: false, MissingFields: missing}
	}
	return Result{OK: true}
}

func present(f models.FieldDefinition, v any) bool {
	if f.FieldType == models.FieldFile {
		return truthy(v)
	}
	return strings.TrimSpace(utils.Stringify(v)) != ""
}

// truthy treats an uploaded file reference as present when it is any non-empty value.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
