package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/models"
	"ms-registration/internal/registration"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

func (m *MockStore) GetSchema(ctx context.Context, eventID string) ([]models.FieldDefinition, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FieldDefinition), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Resolve(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.Participant), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Write(ctx context.Context, t Table) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func reportFixture() (*MockStore, *MockDirectory) {
	store := new(MockStore)
	store.On("ListByEvent", mock.Anything, "evt-1").Return([]models.Registration{
		{ID: "r1", ParticipantID: "u1", Status: models.StatusRegistered, Answers: models.Submission{"Phone": "0812"}},
		{ID: "r2", ParticipantID: "u1", Status: models.StatusCancelled, Answers: models.Submission{"Phone": "0813"}},
		{ID: "r3", ParticipantID: "u2", Status: models.StatusAttended, Answers: models.Submission{"Phone": "0814"}},
	}, nil)
	store.On("GetSchema", mock.Anything, "evt-1").Return([]models.FieldDefinition{{FieldName: "Phone"}}, nil)

	dir := new(MockDirectory)
	return store, dir
}

func TestReportResolvesEachParticipantOnce(t *testing.T) {
	store, dir := reportFixture()
	dir.On("Resolve", mock.Anything, []string{"u1", "u2"}).Return(map[string]models.Participant{
		"u1": {ID: "u1", Name: "Budi"},
	}, nil)

	svc := NewService(store, store, dir, nil)
	table, err := svc.Report(context.Background(), "evt-1")
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	assert.Equal(t, "Budi", table.Rows[0][1])
	assert.Equal(t, "", table.Rows[2][1])
	dir.AssertExpectations(t)
}

func TestReportSurvivesDirectoryFailure(t *testing.T) {
	store, dir := reportFixture()
	dir.On("Resolve", mock.Anything, mock.Anything).Return(nil, errors.New("profile service down"))

	table, err := NewService(store, store, dir, nil).Report(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
}

func TestReportStorageFailure(t *testing.T) {
	store := new(MockStore)
	store.On("ListByEvent", mock.Anything, "evt-1").Return(nil, errors.New("db down"))

	_, err := NewService(store, store, nil, nil).Report(context.Background(), "evt-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, registration.ErrStorageUnavailable)
}

func TestReportSchemaFailure(t *testing.T) {
	store := new(MockStore)
	store.On("ListByEvent", mock.Anything, "evt-1").Return([]models.Registration{}, nil)
	store.On("GetSchema", mock.Anything, "evt-1").Return(nil, errors.New("db down"))

	_, err := NewService(store, store, nil, nil).Report(context.Background(), "evt-1")
	var se *registration.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "load form", se.Op)
}

func TestWriteReport(t *testing.T) {
	store, _ := reportFixture()

	var buf bytes.Buffer
	require.NoError(t, NewService(store, store, nil, nil).WriteReport(context.Background(), &buf, "evt-1", ','))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(append(append([]string{}, FixedColumns...), "Phone"), ","), lines[0])
}

func TestPublishWritesToSink(t *testing.T) {
	store, _ := reportFixture()
	sink := new(MockSink)
	sink.On("Write", mock.Anything, mock.MatchedBy(func(t Table) bool { return len(t.Rows) == 3 })).Return(nil).Once()

	table, err := NewService(store, store, nil, nil).Publish(context.Background(), "evt-1", sink)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
	sink.AssertExpectations(t)
}
