package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/utils"
)

// parseDelimiter accepts a single character or the word "tab"; empty means comma.
func parseDelimiter(raw string) (rune, bool) {
	switch raw {
	case "":
		return ',', true
	case "tab", `\t`:
		return '\t', true
	}
	d, size := utf8.DecodeRuneInString(raw)
	if size != len(raw) || d == '"' || d == '\n' || d == '\r' || d == utf8.RuneError {
		return 0, false
	}
	return d, true
}

// rawQueryParam reads one parameter straight from the raw query. url.Query drops
// pairs containing ';', which is the most common alternate delimiter.
func rawQueryParam(rawQuery, name string) (string, error) {
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != name {
			continue
		}
		return url.QueryUnescape(value)
	}
	return "", nil
}

// ExportCSV downloads the flattened registration table of an event.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("ExportCSV: eventId=%s", eventID))

	if !h.requireOrganizer(w, r, eventID) {
		return
	}

	raw, err := rawQueryParam(r.URL.RawQuery, "delimiter")
	if err != nil {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid delimiter", err.Error()))
		return
	}
	delim, ok := parseDelimiter(raw)
	if !ok {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid delimiter", "delimiter must be a single character"))
		return
	}

	// buffer so a failure still gets a proper status code
	var buf bytes.Buffer
	if err := h.Export.WriteReport(r.Context(), &buf, eventID, delim); err != nil {
		h.writeError(w, "ExportCSV", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="registrations-%s.csv"`, eventID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ExportCSV: failed to write body: %v", err))
	}
}

// ExportSheets pushes the same table to the configured spreadsheet.
func (h *Handler) ExportSheets(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("ExportSheets: eventId=%s", eventID))

	if h.Sheets == nil {
		h.respond(w, http.StatusNotImplemented, utils.ErrorResponse("Sheets export is not enabled", "no spreadsheet configured"))
		return
	}
	if !h.requireOrganizer(w, r, eventID) {
		return
	}

	table, err := h.Export.Publish(r.Context(), eventID, h.Sheets)
	if err != nil {
		h.writeError(w, "ExportSheets", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Exported to Google Sheets", map[string]int{
		"rows":    len(table.Rows),
		"columns": len(table.Header),
	}))
}
