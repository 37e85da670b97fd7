// Package validator checks request DTOs through struct tags.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"ms-registration/internal/models"
)

var global *validator.Validate

const (
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrInvalidStatus      = "Unknown registration status"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	global = New()
}

func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("registration_status", validateStatus)
	_ = v.RegisterValidation("field_type", validateFieldType)
	return v
}

func validateStatus(fl validator.FieldLevel) bool {
	return models.RegistrationStatus(fl.Field().String()).Valid()
}

func validateFieldType(fl validator.FieldLevel) bool {
	return models.FieldType(fl.Field().String()).Valid()
}

// Validate returns the first violated rule as a readable error, or nil.
func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(global.StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return err
	}

	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "lt", "lte", "max":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte", "min":
		msg = ErrFieldBelowMinVal
	case "registration_status":
		msg = ErrInvalidStatus
	case "field_type":
		msg = "Unknown field type"
	default:
		msg = ErrUnknownValidation
	}
	return fmt.Errorf("%s: %s", msg, ve.Namespace())
}
