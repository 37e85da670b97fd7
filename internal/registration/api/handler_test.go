package api_test

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/auth"
	"ms-registration/internal/checkin"
	"ms-registration/internal/events"
	"ms-registration/internal/export"
	"ms-registration/internal/models"
	"ms-registration/internal/recall"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/api"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/sse"
)

const (
	organizer = "org-1"
	eventID   = "evt-1"
)

type organizers map[string]string // eventID → organizer

func (o organizers) VerifyEventOwnership(_ context.Context, eventID, userID string) (bool, error) {
	return o[eventID] == userID, nil
}

type testEnv struct {
	router http.Handler
	bunDB  *bun.DB
	store  *db.DB
	feed   *sse.RegistrationFeed
	passes *checkin.PassIssuer
}

// withTestUser stands in for the OIDC middleware: X-User becomes the token subject.
func withTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := r.Header.Get("X-User"); u != "" {
			r = r.WithContext(auth.WithUserID(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { bunDB.Close() })

	store := db.New(bunDB)
	feed := sse.NewRegistrationFeed()

	regs := registration.NewService(store, nil)
	regs.Feed = feed

	passes, err := checkin.NewPassIssuer("door-secret")
	require.NoError(t, err)

	h := &api.Handler{
		Registrations: regs,
		Events:        events.NewService(store, nil),
		Recall:        recall.NewRecaller(store),
		Export:        export.NewService(store, store, nil, nil),
		Desk:          checkin.NewDesk(passes, regs, nil),
		Feed:          feed,
		Owners:        organizers{eventID: organizer},
	}

	r := chi.NewRouter()
	r.Use(withTestUser)
	r.Route("/api/registration", h.Routes)

	return &testEnv{router: r, bunDB: bunDB, store: store, feed: feed, passes: passes}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (e *testEnv) putForm(t *testing.T) {
	t.Helper()
	rec, _ := e.do(t, http.MethodPut, "/api/registration/events/"+eventID+"/form", organizer, map[string]any{
		"fields": []map[string]any{
			{"field_name": "Phone", "field_type": "text", "is_required": true, "order_index": 1},
			{"label": "Size", "type": "select", "required": "false", "options": "S, M, L", "order": 2},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (e *testEnv) submit(t *testing.T, user string, answers models.Submission) models.Registration {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/registration/events/"+eventID+"/registrations", user, models.SubmitRequest{Answers: answers})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reg models.Registration
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	return reg
}

func TestFormRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)

	rec, body := env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/form", "someone", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var form models.FormResponse
	require.NoError(t, json.Unmarshal(body.Data, &form))
	require.Len(t, form.Fields, 2)
	assert.Equal(t, "Phone", form.Fields[0].FieldName)
	assert.Equal(t, []string{"S", "M", "L"}, form.Fields[1].Options)
}

func TestPutFormRequiresOrganizer(t *testing.T) {
	env := setupTestEnv(t)

	rec, _ := env.do(t, http.MethodPut, "/api/registration/events/"+eventID+"/form", "intruder", map[string]any{"fields": []any{}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/registration/events/"+eventID+"/form", "", map[string]any{"fields": []any{}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitErrorMapping(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	path := "/api/registration/events/" + eventID + "/registrations"

	rec, body := env.do(t, http.MethodPost, path, "u1", models.SubmitRequest{Answers: models.Submission{"Size": "M"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var missing struct {
		MissingFields []string `json:"missing_fields"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &missing))
	assert.Equal(t, []string{"Phone"}, missing.MissingFields)

	first := env.submit(t, "u1", models.Submission{"Phone": "08123"})
	assert.Equal(t, models.StatusRegistered, first.Status)

	rec, body = env.do(t, http.MethodPost, path, "u1", models.SubmitRequest{Answers: models.Submission{"Phone": "08123"}})
	require.Equal(t, http.StatusConflict, rec.Code)
	var dup struct {
		RegistrationID string `json:"registration_id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &dup))
	assert.Equal(t, first.ID, dup.RegistrationID)

	require.NoError(t, env.store.UpsertSettings(context.Background(), models.EventSettings{EventID: eventID, Capacity: 1}))
	rec, body = env.do(t, http.MethodPost, path, "u2", models.SubmitRequest{Answers: models.Submission{"Phone": "1"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "event_full", body.Error)

	rec, _ = env.do(t, http.MethodPost, path, "u2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)

	rec, body := env.do(t, http.MethodPost, "/api/registration/events/"+eventID+"/validate", "u1", models.SubmitRequest{Answers: models.Submission{"Phone": "  "}})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		OK            bool     `json:"ok"`
		MissingFields []string `json:"missingFields"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.False(t, res.OK)
}

func TestCancelRecallAndCount(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	reg := env.submit(t, "u1", models.Submission{"Phone": "08123", "Size": "L"})

	rec, body := env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/registrations/count", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count models.CountResponse
	require.NoError(t, json.Unmarshal(body.Data, &count))
	assert.Equal(t, 1, count.Active)

	rec, _ = env.do(t, http.MethodDelete, "/api/registration/registrations/"+reg.ID, "u2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/registration/registrations/"+reg.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/recall", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recalled struct {
		Found   bool              `json:"found"`
		Answers models.Submission `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &recalled))
	assert.True(t, recalled.Found)
	assert.Equal(t, "L", recalled.Answers["Size"])

	rec, body = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/registrations/count", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &count))
	assert.Equal(t, 0, count.Active)

	rec, _ = env.do(t, http.MethodGet, "/api/registration/registrations/missing", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetStatusByOrganizer(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	reg := env.submit(t, "u1", models.Submission{"Phone": "08123"})
	path := "/api/registration/registrations/" + reg.ID + "/status"

	rec, _ := env.do(t, http.MethodPut, path, "u1", models.StatusUpdateRequest{Status: models.StatusAttended})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPut, path, organizer, models.StatusUpdateRequest{Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, path, organizer, models.StatusUpdateRequest{Status: models.StatusCancelled})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPut, path, organizer, models.StatusUpdateRequest{Status: models.StatusAttended})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/registration/registrations/"+reg.ID, organizer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPassAndCheckIn(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	reg := env.submit(t, "u1", models.Submission{"Phone": "08123"})

	rec, _ := env.do(t, http.MethodGet, "/api/registration/registrations/"+reg.ID+"/pass", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec, _ = env.do(t, http.MethodGet, "/api/registration/registrations/"+reg.ID+"/pass", "u2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token, err := env.passes.Token(&reg)
	require.NoError(t, err)

	rec, _ = env.do(t, http.MethodPost, "/api/registration/checkin", "u1", map[string]string{"eventId": eventID, "token": token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/registration/checkin", organizer, map[string]string{"eventId": eventID, "token": "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/registration/checkin", organizer, map[string]string{"eventId": eventID, "token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var checkedIn models.Registration
	require.NoError(t, json.Unmarshal(body.Data, &checkedIn))
	assert.Equal(t, models.StatusAttended, checkedIn.Status)
}

func TestExportCSV(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	env.submit(t, "u1", models.Submission{"Phone": "08123", "Note": "late; arriving"})

	rec, _ := env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv?delimiter=;", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ";Phone;Size;Note"), lines[0])
	assert.Contains(t, lines[1], `"late; arriving"`)

	rec, _ = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv?delimiter=ab", organizer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/registration/events/"+eventID+"/export/sheets", organizer, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestExportDelimiters(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	env.submit(t, "u1", models.Submission{"Phone": "08123", "Note": "a\tb"})

	rec, _ := env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv?delimiter=%3B", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ";Phone;Size;Note")

	rec, _ = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv?delimiter=tab", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\tPhone\tSize\tNote")
	assert.Contains(t, rec.Body.String(), "\"a\tb\"")

	rec, _ = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ",Phone,Size,Note")

	rec, _ = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv?delimiter=%ZZ", organizer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)
	require.NoError(t, env.bunDB.Close())

	rec, body := env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/recall", "u1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Storage unavailable", body.Message)

	rec, _ = env.do(t, http.MethodGet, "/api/registration/events/"+eventID+"/export.csv", organizer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveFeed(t *testing.T) {
	env := setupTestEnv(t)
	env.putForm(t)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/registration/events/"+eventID+"/live", nil)
	require.NoError(t, err)
	req.Header.Set("X-User", organizer)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return env.feed.ClientCount(eventID) == 1 }, time.Second, 10*time.Millisecond)
	reg := env.submit(t, "u1", models.Submission{"Phone": "08123"})

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: registration") {
			break
		}
	}
	data, err := reader.ReadString('\n')
	require.NoError(t, err)

	var evt models.RegistrationEventDto
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(data), "data: ")), &evt))
	assert.Equal(t, models.EventRegistrationCreated, evt.Type)
	assert.Equal(t, reg.ID, evt.RegistrationID.String())
	assert.Equal(t, 1, evt.ActiveCount)
}
