// Package events keeps the registration-relevant settings and forms of events
// in sync with the event service.
package events

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/schema"
	"ms-registration/internal/validator"
)

var ErrInvalidForm = errors.New("invalid registration form")

type Store interface {
	GetSettings(ctx context.Context, eventID string) (models.EventSettings, error)
	UpsertSettings(ctx context.Context, settings models.EventSettings) error
	GetSchema(ctx context.Context, eventID string) ([]models.FieldDefinition, error)
	ReplaceSchema(ctx context.Context, eventID string, fields []models.FieldDefinition) error
}

type Service struct {
	Store  Store
	Logger *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{Store: store, Logger: log}
}

// Form returns the fields of an event in display order.
func (s *Service) Form(ctx context.Context, eventID string) ([]models.FieldDefinition, error) {
	fields, err := s.Store.GetSchema(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	return schema.SortedFields(fields), nil
}

func (s *Service) Settings(ctx context.Context, eventID string) (models.EventSettings, error) {
	settings, err := s.Store.GetSettings(ctx, eventID)
	if err != nil {
		return models.EventSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveForm normalizes raw organizer input, reconciles the payment proof field
// with the current fee and replaces the stored form. Duplicate names are reported, not rejected.
func (s *Service) SaveForm(ctx context.Context, eventID string, raws []map[string]any) (models.FormResponse, error) {
	fields, err := schema.NormalizeAll(raws)
	if err != nil {
		return models.FormResponse{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	for _, f := range fields {
		if err := validator.Validate(ctx, f); err != nil {
			return models.FormResponse{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
		}
	}

	settings, err := s.Settings(ctx, eventID)
	if err != nil {
		return models.FormResponse{}, err
	}
	return s.storeForm(ctx, eventID, fields, settings.RegistrationFee)
}

// ApplySettings stores new capacity and fee. A form sent along replaces the
// stored one; otherwise the stored form only gains or loses its payment field.
func (s *Service) ApplySettings(ctx context.Context, update models.EventSettingsUpdate) error {
	if err := validator.Validate(ctx, update); err != nil {
		return fmt.Errorf("invalid settings update: %w", err)
	}

	if err := s.Store.UpsertSettings(ctx, models.EventSettings{
		EventID:         update.EventID,
		Capacity:        update.Capacity,
		RegistrationFee: update.RegistrationFee,
	}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.Logger.Info("EVENTS", fmt.Sprintf("Settings for event %s: capacity=%d fee=%.2f", update.EventID, update.Capacity, update.RegistrationFee))

	if update.FormFields != nil {
		fields, err := schema.NormalizeAll(update.FormFields)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidForm, err)
		}
		_, err = s.storeForm(ctx, update.EventID, fields, update.RegistrationFee)
		return err
	}

	current, err := s.Store.GetSchema(ctx, update.EventID)
	if err != nil {
		return fmt.Errorf("load form: %w", err)
	}
	reconciled := schema.ReconcilePaymentField(current, update.RegistrationFee)
	if len(reconciled) == len(current) {
		return nil
	}
	_, err = s.storeForm(ctx, update.EventID, reconciled, update.RegistrationFee)
	return err
}

func (s *Service) storeForm(ctx context.Context, eventID string, fields []models.FieldDefinition, fee float64) (models.FormResponse, error) {
	fields = schema.ReconcilePaymentField(schema.SortedFields(fields), fee)

	if err := s.Store.ReplaceSchema(ctx, eventID, fields); err != nil {
		return models.FormResponse{}, fmt.Errorf("save form: %w", err)
	}

	dups := schema.Duplicates(fields)
	if len(dups) > 0 {
		s.Logger.Warn("EVENTS", fmt.Sprintf("Form of event %s has duplicate field names %v; their answers share one key", eventID, dups))
	}
	s.Logger.Info("EVENTS", fmt.Sprintf("Stored form of event %s with %d fields", eventID, len(fields)))

	return models.FormResponse{EventID: eventID, Fields: fields, Duplicates: dups}, nil
}
