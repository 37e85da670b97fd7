package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-registration/internal/models"
	"ms-registration/internal/registration"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ---------------- EVENT TRANSACTIONS ----------------

// RunInEventTx → lock the event_settings row, then run fn inside the same transaction.
// The row is created on first use so events without settings can still be locked.
func (d *DB) RunInEventTx(ctx context.Context, eventID string, fn func(tx registration.EventTx) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Step 1: Make sure there is a row to lock
		seed := &models.EventSettings{EventID: eventID, UpdatedAt: time.Now().UTC()}
		if _, err := tx.NewInsert().
			Model(seed).
			On("CONFLICT (event_id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}

		// Step 2: Lock it; concurrent submissions for the event queue here
		var settings models.EventSettings
		q := tx.NewSelect().Model(&settings).Where("event_id = ?", eventID)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}

		// Step 3: Everything below sees and writes through the locked transaction
		return fn(&eventTx{tx: tx, eventID: eventID, settings: settings})
	})
}

type eventTx struct {
	tx       bun.Tx
	eventID  string
	settings models.EventSettings
}

func (t *eventTx) Settings() models.EventSettings {
	return t.settings
}

func (t *eventTx) ActiveRegistration(ctx context.Context, participantID string) (*models.Registration, error) {
	var reg models.Registration
	err := t.tx.NewSelect().
		Model(&reg).
		Where("event_id = ?", t.eventID).
		Where("participant_id = ?", participantID).
		Where("status <> ?", models.StatusCancelled).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (t *eventTx) CountActive(ctx context.Context) (int, error) {
	return activeQuery(t.tx.NewSelect(), t.eventID).Count(ctx)
}

func (t *eventTx) Schema(ctx context.Context) ([]models.FieldDefinition, error) {
	return selectSchema(ctx, t.tx, t.eventID)
}

func (t *eventTx) Insert(ctx context.Context, reg *models.Registration) error {
	_, err := t.tx.NewInsert().Model(reg).Exec(ctx)
	if isUniqueViolation(err) {
		return registration.ErrAlreadyRegistered
	}
	return err
}

// ---------------- REGISTRATIONS ----------------

// GetRegistration → fetch one registration, nil when unknown
func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// CompareAndSetStatus → single-row conditional update; false when the status moved on
func (d *DB) CompareAndSetStatus(ctx context.Context, id string, from, to models.RegistrationStatus, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return false, registration.ErrAlreadyRegistered
		}
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountActive → live count of non-cancelled registrations
func (d *DB) CountActive(ctx context.Context, eventID string) (int, error) {
	return activeQuery(d.Bun.NewSelect(), eventID).Count(ctx)
}

// ListByEvent → every registration of an event, oldest first
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Order("registered_at ASC", "id ASC").
		Scan(ctx)
	return regs, err
}

// CancelledRegistrations → a participant's cancelled registrations for an event, newest first
func (d *DB) CancelledRegistrations(ctx context.Context, eventID, participantID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Where("participant_id = ?", participantID).
		Where("status = ?", models.StatusCancelled).
		Order("registered_at DESC").
		Scan(ctx)
	return regs, err
}

func activeQuery(q *bun.SelectQuery, eventID string) *bun.SelectQuery {
	return q.Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Where("status <> ?", models.StatusCancelled)
}

// isUniqueViolation detects the partial unique index on active (event_id, participant_id).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
