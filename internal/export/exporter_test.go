package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/models"
)

func column(t *testing.T, table Table, name string) int {
	t.Helper()
	for i, h := range table.Header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %q not in header %v", name, table.Header)
	return -1
}

func TestExportOrphanColumns(t *testing.T) {
	fields := []models.FieldDefinition{
		{FieldName: "Phone", OrderIndex: 0},
		{FieldName: "T-Shirt Size", FieldType: models.FieldSelect, OrderIndex: 1},
	}
	regs := []models.Registration{{
		ID:            "reg-1",
		ParticipantID: "user-1",
		Status:        models.StatusRegistered,
		RegisteredAt:  time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC),
		Answers:       models.Submission{"Phone": "08123", "Notes": "extra"},
	}}
	lookup := LookupMap{"user-1": {ID: "user-1", Name: "Ayu", Email: "ayu@example.com", Phone: "0811", Institution: "ITB"}}

	table := Export(fields, regs, lookup)

	wantHeader := append(append([]string{}, FixedColumns...), "Phone", "T-Shirt Size", "Notes")
	assert.Equal(t, wantHeader, table.Header)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{
		"reg-1", "Ayu", "ayu@example.com", "0811", "ITB", "registered", "2026-04-02T08:30:00Z",
		"08123", "", "extra",
	}, table.Rows[0])
}

func TestExportEveryAnswerKeyOnce(t *testing.T) {
	fields := []models.FieldDefinition{{FieldName: "B", OrderIndex: 1}, {FieldName: "A", OrderIndex: 0}, {FieldName: "A", OrderIndex: 2}}
	regs := []models.Registration{
		{ID: "1", Answers: models.Submission{"A": "a1", "Z": "z1", "Y": "y1"}},
		{ID: "2", Answers: models.Submission{"B": "b2", "X": "x2", "Z": "z2"}},
		{ID: "3"},
	}

	table := Export(fields, regs, nil)

	counts := map[string]int{}
	for _, h := range table.Header {
		counts[h]++
	}
	for _, reg := range regs {
		for key, val := range reg.Answers {
			assert.Equal(t, 1, counts[key], "key %s", key)
			for i, row := range table.Rows {
				if row[0] == reg.ID {
					assert.Equal(t, val, table.Rows[i][column(t, table, key)])
				}
			}
		}
	}

	// form columns in order, then orphans in first-seen order
	assert.Equal(t, []string{"A", "B", "Y", "Z", "X"}, table.Header[len(FixedColumns):])
	assert.Len(t, table.Rows[2], len(table.Header))
}

func TestExportUnknownParticipant(t *testing.T) {
	table := Export(nil, []models.Registration{{ID: "r", ParticipantID: "ghost", Status: models.StatusCancelled}}, LookupMap{})
	assert.Equal(t, []string{"r", "", "", "", "", "cancelled", ""}, table.Rows[0])
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "S, L", Cell([]any{"S", "", "L"}))
	assert.Equal(t, `{"a":1}`, Cell(map[string]any{"a": 1}))
	assert.Equal(t, "3.5", Cell(3.5))
	assert.Equal(t, "false", Cell(false))
}

func TestEscapeCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
		{"line\nbreak", "\"line\nbreak\""},
		{"carriage\rreturn", "\"carriage\rreturn\""},
		{"tab\tseparated", "tab\tseparated"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeCell(tt.in, ','), tt.in)
	}

	assert.Equal(t, `"a;b"`, EscapeCell("a;b", ';'))
	assert.Equal(t, "a,b", EscapeCell("a,b", ';'))
}

func TestWriteDelimited(t *testing.T) {
	table := Table{
		Header: []string{"id", "Notes"},
		Rows:   [][]string{{"1", "hello, world"}, {"2", `5" screen`}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDelimited(&buf, table, ','))
	assert.Equal(t, "id,Notes\n1,\"hello, world\"\n2,\"5\"\" screen\"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteDelimited(&buf, table, ';'))
	assert.Equal(t, "id;Notes\n1;hello, world\n2;\"5\"\" screen\"\n", buf.String())
}
