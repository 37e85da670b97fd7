package export

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsSink overwrites one sheet of a spreadsheet with the report.
type SheetsSink struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsSink authenticates with a service-account credentials file.
func NewSheetsSink(ctx context.Context, credentialsPath, spreadsheetID, sheetName string) (*SheetsSink, error) {
	credBytes, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credBytes, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewSheetsSinkWithOptions(ctx, spreadsheetID, sheetName, option.WithHTTPClient(config.Client(ctx)))
}

func NewSheetsSinkWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*SheetsSink, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}

	return &SheetsSink{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// Write clears the sheet, then writes the header and rows from A1.
func (s *SheetsSink) Write(ctx context.Context, t Table) error {
	if _, err := s.service.Spreadsheets.Values.
		Clear(s.spreadsheetID, s.sheetName, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", s.sheetName, err)
	}

	valueRange := &sheets.ValueRange{Values: tableValues(t)}
	_, err := s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, s.sheetName+"!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", s.sheetName, err)
	}
	return nil
}

func tableValues(t Table) [][]interface{} {
	values := make([][]interface{}, 0, len(t.Rows)+1)
	values = append(values, toRow(t.Header))
	for _, row := range t.Rows {
		values = append(values, toRow(row))
	}
	return values
}

func toRow(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
