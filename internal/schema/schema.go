// Package schema turns organizer-authored form definitions into canonical
// FieldDefinitions and keeps the payment-proof field in line with the event fee.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"ms-registration/internal/models"
	"ms-registration/internal/utils"
)

// PaymentFieldName is the label of the auto-inserted payment proof upload.
const PaymentFieldName = "Bukti Pembayaran"

var paymentFieldMarkers = []string{"bukti pembayaran", "payment proof"}

var ErrEmptyFieldName = errors.New("field name must not be empty")

// Alternate spellings accepted for each canonical attribute, in lookup order.
var (
	nameKeys     = []string{"fieldName", "field_name", "name", "label"}
	typeKeys     = []string{"fieldType", "field_type", "type"}
	requiredKeys = []string{"isRequired", "is_required", "required"}
	optionsKeys  = []string{"options", "field_options", "fieldOptions"}
	orderKeys    = []string{"orderIndex", "order_index", "order"}
)

// Normalize converts one raw field, whatever its key convention, into a FieldDefinition.
// Unknown types fall back to text, a missing required flag to false and a
// missing or non-finite order to 0. The field name is trimmed but not checked here.
func Normalize(raw map[string]any) models.FieldDefinition {
	field := models.FieldDefinition{
		FieldName:  strings.TrimSpace(utils.Stringify(lookup(raw, nameKeys))),
		FieldType:  normalizeType(lookup(raw, typeKeys)),
		IsRequired: normalizeBool(lookup(raw, requiredKeys)),
		OrderIndex: normalizeOrder(lookup(raw, orderKeys)),
	}

	if field.FieldType == models.FieldSelect {
		field.Options = ParseSelectOptions(lookup(raw, optionsKeys))
	}
	return field
}

// NormalizeAll normalizes a whole form, recording insertion order in Position.
func NormalizeAll(raws []map[string]any) ([]models.FieldDefinition, error) {
	fields := make([]models.FieldDefinition, 0, len(raws))
	for i, raw := range raws {
		field := Normalize(raw)
		if field.FieldName == "" {
			return nil, fmt.Errorf("field %d: %w", i, ErrEmptyFieldName)
		}
		field.Position = i
		fields = append(fields, field)
	}
	return fields, nil
}

// ParseSelectOptions accepts nil, a list, a comma-delimited string or an object
// carrying an "options" list. The result never contains empty entries and is never nil.
func ParseSelectOptions(raw any) []string {
	out := []string{}

	switch val := raw.(type) {
	case nil:
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		for _, item := range val {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	case []any:
		for _, item := range val {
			if s := strings.TrimSpace(utils.Stringify(item)); s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		if nested, ok := val["options"]; ok {
			return ParseSelectOptions(nested)
		}
	}

	return out
}

// SortedFields returns a copy ordered by OrderIndex; ties keep their input order.
func SortedFields(fields []models.FieldDefinition) []models.FieldDefinition {
	sorted := append([]models.FieldDefinition(nil), fields...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderIndex < sorted[j].OrderIndex
	})
	return sorted
}

// Duplicates lists field names that occur more than once, in first-seen order.
// Answers to such fields collide under one key.
func Duplicates(fields []models.FieldDefinition) []string {
	seen := make(map[string]int, len(fields))
	var dups []string
	for _, f := range fields {
		seen[f.FieldName]++
		if seen[f.FieldName] == 2 {
			dups = append(dups, f.FieldName)
		}
	}
	return dups
}

// IsPaymentField matches the payment proof field by case-insensitive substring.
func IsPaymentField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range paymentFieldMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ReconcilePaymentField appends a required file field for payment proof when the
// fee is positive and none exists, and strips every payment field when it is not.
// The input slice is not modified; applying it twice yields the same schema.
func ReconcilePaymentField(fields []models.FieldDefinition, fee float64) []models.FieldDefinition {
	if fee > 0 {
		out := append([]models.FieldDefinition(nil), fields...)
		maxOrder, maxPos := -1, -1
		for _, f := range fields {
			if IsPaymentField(f.FieldName) {
				return out
			}
			maxOrder = max(maxOrder, f.OrderIndex)
			maxPos = max(maxPos, f.Position)
		}

		return append(out, models.FieldDefinition{
			FieldName:  PaymentFieldName,
			FieldType:  models.FieldFile,
			IsRequired: true,
			OrderIndex: maxOrder + 1,
			Position:   maxPos + 1,
		})
	}

	out := make([]models.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if !IsPaymentField(f.FieldName) {
			out = append(out, f)
		}
	}
	return out
}

// lookup prefers an exact key match. Otherwise keys compare ignoring case and
// the separators '_', '-' and ' ', so FieldName, field-name and FIELD_NAME all hit.
func lookup(raw map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}

	folded := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		f := foldKey(k)
		// several raw keys may fold together; keep the smallest for a stable pick
		if prev, ok := folded[f]; !ok || k < prev {
			folded[f] = k
		}
	}
	for _, k := range keys {
		if rawKey, ok := folded[foldKey(k)]; ok {
			return raw[rawKey]
		}
	}
	return nil
}

func foldKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return unicode.ToLower(r)
	}, k)
}

func normalizeType(v any) models.FieldType {
	t := models.FieldType(strings.ToLower(strings.TrimSpace(utils.Stringify(v))))
	if !t.Valid() {
		return models.FieldText
	}
	return t
}

func normalizeBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	case float64:
		return val != 0
	case int:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	}
	return false
}

func normalizeOrder(v any) int {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		return val
	case int64:
		return int(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0
	}
	return int(f)
}
