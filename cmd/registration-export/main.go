// Command registration-export writes the registration report of one event as
// delimited text, and optionally pushes it to the configured spreadsheet.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-registration/internal/config"
	"ms-registration/internal/export"
	"ms-registration/internal/logger"
	"ms-registration/internal/registration/db"
)

func main() {
	eventID := flag.String("event", "", "event id to export (required)")
	delimiter := flag.String("delimiter", ",", "single-character column delimiter")
	outPath := flag.String("out", "", "output file (default stdout)")
	toSheets := flag.Bool("sheets", false, "also push the report to Google Sheets")
	flag.Parse()

	log := logger.New(os.Stderr)

	if *eventID == "" {
		flag.Usage()
		os.Exit(2)
	}
	delim := []rune(*delimiter)
	if len(delim) != 1 {
		log.Fatal("CONFIG", "delimiter must be a single character")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	store := db.New(bunDB)
	service := export.NewService(store, store, nil, log)

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal("EXPORT", fmt.Sprintf("Cannot create %s: %v", *outPath, err))
		}
		defer f.Close()
		out = f
	}

	if err := service.WriteReport(ctx, out, *eventID, delim[0]); err != nil {
		log.Fatal("EXPORT", fmt.Sprintf("Export failed: %v", err))
	}
	log.Info("EXPORT", fmt.Sprintf("Report for event %s written", *eventID))

	if !*toSheets {
		return
	}
	if !cfg.SheetsEnabled() {
		log.Fatal("SHEETS", "SHEETS_CREDENTIALS_FILE and SHEETS_SPREADSHEET_ID must be set")
	}
	sink, err := export.NewSheetsSink(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
	if err != nil {
		log.Fatal("SHEETS", err.Error())
	}
	table, err := service.Publish(ctx, *eventID, sink)
	if err != nil {
		log.Fatal("SHEETS", fmt.Sprintf("Push failed: %v", err))
	}
	log.Info("SHEETS", fmt.Sprintf("Pushed %d rows to sheet %s", len(table.Rows), cfg.Sheets.SheetName))
}
