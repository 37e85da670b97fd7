package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

// ---------------- EVENT SETTINGS ----------------

// GetSettings → capacity and fee of an event; zero settings when none were received yet
func (d *DB) GetSettings(ctx context.Context, eventID string) (models.EventSettings, error) {
	settings := models.EventSettings{EventID: eventID}
	err := d.Bun.NewSelect().
		Model(&settings).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EventSettings{EventID: eventID}, nil
	}
	return settings, err
}

// UpsertSettings → insert or overwrite capacity and fee
func (d *DB) UpsertSettings(ctx context.Context, settings models.EventSettings) error {
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().
		Model(&settings).
		On("CONFLICT (event_id) DO UPDATE").
		Set("capacity = EXCLUDED.capacity").
		Set("registration_fee = EXCLUDED.registration_fee").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ---------------- FORM FIELDS ----------------

// GetSchema → form fields ordered by order_index, then insertion position
func (d *DB) GetSchema(ctx context.Context, eventID string) ([]models.FieldDefinition, error) {
	return selectSchema(ctx, d.Bun, eventID)
}

// ReplaceSchema → swap the whole form of an event in one transaction.
// Stored registrations keep whatever answer keys they were submitted with.
func (d *DB) ReplaceSchema(ctx context.Context, eventID string, fields []models.FieldDefinition) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.FieldDefinition)(nil)).
			Where("event_id = ?", eventID).
			Exec(ctx); err != nil {
			return err
		}

		if len(fields) == 0 {
			return nil
		}

		rows := make([]models.FieldDefinition, len(fields))
		for i, f := range fields {
			f.ID = 0
			f.EventID = eventID
			f.Position = i
			rows[i] = f
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func selectSchema(ctx context.Context, db bun.IDB, eventID string) ([]models.FieldDefinition, error) {
	fields := []models.FieldDefinition{}
	err := db.NewSelect().
		Model(&fields).
		Where("event_id = ?", eventID).
		Order("order_index ASC", "position ASC").
		Scan(ctx)
	return fields, err
}
