package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB; one connection keeps a single database
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })

	return db.New(bunDB), bunDB
}

func newRegistration(eventID, participantID string, status models.RegistrationStatus, at time.Time) *models.Registration {
	return &models.Registration{
		ID:            uuid.New().String(),
		EventID:       eventID,
		ParticipantID: participantID,
		Status:        status,
		Answers:       models.Submission{"Phone": "08123"},
		RegisteredAt:  at,
		UpdatedAt:     at,
	}
}

func insert(t *testing.T, bunDB *bun.DB, reg *models.Registration) {
	t.Helper()
	_, err := bunDB.NewInsert().Model(reg).Exec(context.Background())
	require.NoError(t, err)
}

func TestRunInEventTxSeedsSettings(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	var seen models.EventSettings
	err := store.RunInEventTx(ctx, "evt-new", func(tx registration.EventTx) error {
		seen = tx.Settings()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-new", seen.EventID)
	assert.Equal(t, 0, seen.Capacity)

	require.NoError(t, store.UpsertSettings(ctx, models.EventSettings{EventID: "evt-new", Capacity: 10, RegistrationFee: 50000}))
	err = store.RunInEventTx(ctx, "evt-new", func(tx registration.EventTx) error {
		seen = tx.Settings()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, seen.Capacity)
	assert.Equal(t, 50000.0, seen.RegistrationFee)
}

func TestRunInEventTxRollsBackOnError(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInEventTx(ctx, "evt-1", func(tx registration.EventTx) error {
		require.NoError(t, tx.Insert(ctx, newRegistration("evt-1", "user-1", models.StatusRegistered, time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := store.CountActive(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInsertDuplicateActiveRegistration(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	err := store.RunInEventTx(ctx, "evt-1", func(tx registration.EventTx) error {
		if err := tx.Insert(ctx, newRegistration("evt-1", "user-1", models.StatusRegistered, time.Now())); err != nil {
			return err
		}
		return tx.Insert(ctx, newRegistration("evt-1", "user-1", models.StatusRegistered, time.Now()))
	})
	assert.ErrorIs(t, err, registration.ErrAlreadyRegistered)
}

func TestCancelledRowsDoNotBlockNewRegistration(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()

	insert(t, bunDB, newRegistration("evt-1", "user-1", models.StatusCancelled, time.Now().Add(-time.Hour)))
	insert(t, bunDB, newRegistration("evt-1", "user-1", models.StatusCancelled, time.Now().Add(-time.Minute)))

	err := store.RunInEventTx(ctx, "evt-1", func(tx registration.EventTx) error {
		active, err := tx.ActiveRegistration(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, active)
		return tx.Insert(ctx, newRegistration("evt-1", "user-1", models.StatusRegistered, time.Now()))
	})
	require.NoError(t, err)

	n, err := store.CountActive(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCompareAndSetStatus(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	reg := newRegistration("evt-1", "user-1", models.StatusRegistered, time.Now())
	insert(t, bunDB, reg)

	ok, err := store.CompareAndSetStatus(ctx, reg.ID, models.StatusRegistered, models.StatusAttended, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	// stale expectation
	ok, err = store.CompareAndSetStatus(ctx, reg.ID, models.StatusRegistered, models.StatusCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAttended, got.Status)
	assert.Equal(t, "08123", got.Answers["Phone"])

	missing, err := store.GetRegistration(ctx, "non-existent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCancelledRegistrationsNewestFirst(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := newRegistration("evt-1", "user-1", models.StatusCancelled, base)
	newer := newRegistration("evt-1", "user-1", models.StatusCancelled, base.Add(time.Hour))
	insert(t, bunDB, older)
	insert(t, bunDB, newer)
	insert(t, bunDB, newRegistration("evt-1", "user-1", models.StatusRegistered, base.Add(2*time.Hour)))
	insert(t, bunDB, newRegistration("evt-1", "user-2", models.StatusCancelled, base.Add(3*time.Hour)))

	regs, err := store.CancelledRegistrations(ctx, "evt-1", "user-1")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, newer.ID, regs[0].ID)
	assert.Equal(t, older.ID, regs[1].ID)
}

func TestListByEventOldestFirst(t *testing.T) {
	store, bunDB := setupTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	second := newRegistration("evt-1", "user-2", models.StatusRegistered, base.Add(time.Minute))
	first := newRegistration("evt-1", "user-1", models.StatusRegistered, base)
	insert(t, bunDB, second)
	insert(t, bunDB, first)
	insert(t, bunDB, newRegistration("evt-2", "user-1", models.StatusRegistered, base))

	regs, err := store.ListByEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, first.ID, regs[0].ID)
	assert.Equal(t, second.ID, regs[1].ID)
}

func TestSchemaReplaceAndOrder(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	fields := []models.FieldDefinition{
		{FieldName: "Size", FieldType: models.FieldSelect, Options: []string{"S", "M"}, OrderIndex: 1},
		{FieldName: "Phone", FieldType: models.FieldText, IsRequired: true, OrderIndex: 0},
		{FieldName: "Notes", FieldType: models.FieldTextarea, OrderIndex: 1},
	}
	require.NoError(t, store.ReplaceSchema(ctx, "evt-1", fields))

	got, err := store.GetSchema(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Phone", got[0].FieldName)
	assert.Equal(t, "Size", got[1].FieldName)
	assert.Equal(t, []string{"S", "M"}, got[1].Options)
	assert.Equal(t, "Notes", got[2].FieldName)

	require.NoError(t, store.ReplaceSchema(ctx, "evt-1", fields[:1]))
	got, err = store.GetSchema(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	empty, err := store.GetSchema(ctx, "evt-unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetSettingsDefaults(t *testing.T) {
	store, _ := setupTestDB(t)

	settings, err := store.GetSettings(context.Background(), "evt-unknown")
	require.NoError(t, err)
	assert.Equal(t, "evt-unknown", settings.EventID)
	assert.Equal(t, 0, settings.Capacity)
}

func TestServiceOverSQLiteRespectsCapacity(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertSettings(ctx, models.EventSettings{EventID: "evt-1", Capacity: 2}))
	require.NoError(t, store.ReplaceSchema(ctx, "evt-1", []models.FieldDefinition{
		{FieldName: "Phone", FieldType: models.FieldText, IsRequired: true},
	}))

	svc := registration.NewService(store, nil)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Submit(ctx, "evt-1", fmt.Sprintf("user-%d", i), models.Submission{"Phone": "1"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, registration.ErrCapacityExceeded) {
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, 6, full)

	n, err := svc.ActiveCount(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
