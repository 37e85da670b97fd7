package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

// CreateSchema creates the registration tables straight from the models.
// PostgreSQL deployments use the versioned migrations instead; this serves
// SQLite databases in tests and local tooling.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*models.EventSettings)(nil),
		(*models.FieldDefinition)(nil),
		(*models.Registration)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	_, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS uq_registrations_active
		ON registrations (event_id, participant_id) WHERE status <> 'cancelled'`)
	return err
}
