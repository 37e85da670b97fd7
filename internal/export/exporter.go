// Package export flattens an event's registrations into a delimited report:
// fixed participant columns, then one column per form field, then orphaned answer keys.
package export

import (
	"bufio"
	"io"
	"sort"
	"strings"
	"time"

	"ms-registration/internal/models"
	"ms-registration/internal/schema"
	"ms-registration/internal/utils"
)

// FixedColumns lead every report.
var FixedColumns = []string{
	"registrationId",
	"participantName",
	"participantEmail",
	"participantPhone",
	"participantInstitution",
	"status",
	"registeredAt",
}

type Table struct {
	Header []string
	Rows   [][]string
}

// ParticipantLookup resolves the profile shown in the fixed columns.
type ParticipantLookup interface {
	Participant(id string) (models.Participant, bool)
}

// LookupMap is a ParticipantLookup over an already resolved set of profiles.
type LookupMap map[string]models.Participant

func (m LookupMap) Participant(id string) (models.Participant, bool) {
	p, ok := m[id]
	return p, ok
}

// Export builds the report. Every answer key of every registration ends up in
// exactly one column: a form column when the form still has the field, an orphan
// column otherwise. Orphans appear in first-seen order; keys of a single
// submission are visited alphabetically since answers carry no order.
func Export(fields []models.FieldDefinition, regs []models.Registration, lookup ParticipantLookup) Table {
	known := make(map[string]bool)
	var formColumns []string
	for _, f := range schema.SortedFields(fields) {
		if known[f.FieldName] {
			continue
		}
		known[f.FieldName] = true
		formColumns = append(formColumns, f.FieldName)
	}

	var orphans []string
	for _, reg := range regs {
		for _, key := range sortedKeys(reg.Answers) {
			if !known[key] {
				known[key] = true
				orphans = append(orphans, key)
			}
		}
	}

	header := make([]string, 0, len(FixedColumns)+len(formColumns)+len(orphans))
	header = append(header, FixedColumns...)
	header = append(header, formColumns...)
	header = append(header, orphans...)

	rows := make([][]string, 0, len(regs))
	for _, reg := range regs {
		var p models.Participant
		if lookup != nil {
			p, _ = lookup.Participant(reg.ParticipantID)
		}

		row := make([]string, 0, len(header))
		row = append(row,
			reg.ID,
			p.Name,
			p.Email,
			p.Phone,
			p.Institution,
			string(reg.Status),
			formatTime(reg.RegisteredAt),
		)
		for _, col := range header[len(FixedColumns):] {
			row = append(row, Cell(reg.Answers[col]))
		}
		rows = append(rows, row)
	}

	return Table{Header: header, Rows: rows}
}

// Cell renders one answer for display.
func Cell(v any) string {
	return utils.Stringify(v)
}

// EscapeCell quotes a cell holding the delimiter, a quote or a line break and doubles inner quotes.
func EscapeCell(cell string, delim rune) string {
	if !strings.ContainsRune(cell, delim) && !strings.ContainsAny(cell, "\"\r\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// WriteDelimited writes the header and rows, one line each.
func WriteDelimited(w io.Writer, t Table, delim rune) error {
	bw := bufio.NewWriter(w)
	sep := string(delim)

	writeLine := func(cells []string) error {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = EscapeCell(c, delim)
		}
		_, err := bw.WriteString(strings.Join(escaped, sep) + "\n")
		return err
	}

	if err := writeLine(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writeLine(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func sortedKeys(s models.Submission) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
