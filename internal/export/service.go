package export

import (
	"context"
	"fmt"
	"io"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
)

type RegistrationSource interface {
	ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
}

type SchemaSource interface {
	GetSchema(ctx context.Context, eventID string) ([]models.FieldDefinition, error)
}

// Directory resolves participant profiles; unknown ids are simply absent from the result.
type Directory interface {
	Resolve(ctx context.Context, ids []string) (map[string]models.Participant, error)
}

// Sink receives a finished report, e.g. a spreadsheet.
type Sink interface {
	Write(ctx context.Context, t Table) error
}

type Service struct {
	Registrations RegistrationSource
	Schema        SchemaSource
	Directory     Directory // optional
	Logger        *logger.Logger
}

func NewService(regs RegistrationSource, schema SchemaSource, dir Directory, log *logger.Logger) *Service {
	return &Service{Registrations: regs, Schema: schema, Directory: dir, Logger: log}
}

// Report reads a snapshot of the event and flattens it.
func (s *Service) Report(ctx context.Context, eventID string) (Table, error) {
	regs, err := s.Registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return Table{}, registration.WrapStorage("list registrations", err)
	}

	fields, err := s.Schema.GetSchema(ctx, eventID)
	if err != nil {
		return Table{}, registration.WrapStorage("load form", err)
	}

	lookup := LookupMap{}
	if s.Directory != nil && len(regs) > 0 {
		ids := participantIDs(regs)
		profiles, err := s.Directory.Resolve(ctx, ids)
		if err != nil {
			// the report is still useful without names
			s.Logger.Warn("EXPORT", fmt.Sprintf("Participant lookup failed for event %s: %v", eventID, err))
		}
		for id, p := range profiles {
			lookup[id] = p
		}
	}

	table := Export(fields, regs, lookup)
	s.Logger.Info("EXPORT", fmt.Sprintf("Built report for event %s: %d rows, %d columns", eventID, len(table.Rows), len(table.Header)))
	return table, nil
}

// WriteReport streams the report of an event as delimited text.
func (s *Service) WriteReport(ctx context.Context, w io.Writer, eventID string, delim rune) error {
	table, err := s.Report(ctx, eventID)
	if err != nil {
		return err
	}
	return WriteDelimited(w, table, delim)
}

// Publish sends the report of an event to a sink.
func (s *Service) Publish(ctx context.Context, eventID string, sink Sink) (Table, error) {
	table, err := s.Report(ctx, eventID)
	if err != nil {
		return Table{}, err
	}
	if err := sink.Write(ctx, table); err != nil {
		return Table{}, fmt.Errorf("write report: %w", err)
	}
	return table, nil
}

func participantIDs(regs []models.Registration) []string {
	seen := make(map[string]bool, len(regs))
	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		if !seen[reg.ParticipantID] {
			seen[reg.ParticipantID] = true
			ids = append(ids, reg.ParticipantID)
		}
	}
	return ids
}
