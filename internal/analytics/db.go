package analytics

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// StatusCounts → number of registrations per status for an event
func (db *DB) StatusCounts(ctx context.Context, eventID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := db.bun.NewSelect().
		Model((*models.Registration)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		Group("status").
		OrderExpr("status ASC").
		Scan(ctx, &counts)
	return counts, err
}

// Capacity → configured capacity, 0 when unlimited or unknown
func (db *DB) Capacity(ctx context.Context, eventID string) (int, error) {
	var settings models.EventSettings
	err := db.bun.NewSelect().
		Model(&settings).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return settings.Capacity, err
}

// ListRegistrations returns an event's registrations with optional filters
func (db *DB) ListRegistrations(ctx context.Context, eventID string, opts RegistrationOptions) ([]models.Registration, error) {
	var regs []models.Registration
	q := db.bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID)

	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}

	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}
	switch opts.SortBy {
	case SortByUpdatedAt:
		q = q.OrderExpr("updated_at " + direction)
	default:
		q = q.OrderExpr("registered_at " + direction)
	}
	q = q.OrderExpr("id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	err := q.Scan(ctx)
	return regs, err
}
