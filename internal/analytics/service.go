// Package analytics summarizes registrations of events for organizer dashboards.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"ms-registration/internal/models"
)

type SortField string

const (
	SortByRegisteredAt SortField = "registered_at"
	SortByUpdatedAt    SortField = "updated_at"
)

// RegistrationOptions filters and pages the registrant list.
type RegistrationOptions struct {
	Status   models.RegistrationStatus `validate:"omitempty,registration_status"`
	SortBy   SortField                 `validate:"omitempty,oneof=registered_at updated_at"`
	SortDesc bool
	Limit    int `validate:"gte=0,lte=500"`
	Offset   int `validate:"gte=0"`
}

type StatusCount struct {
	Status models.RegistrationStatus `bun:"status" json:"status"`
	Count  int                       `bun:"count" json:"count"`
}

// DailyRegistrations counts registrations created on one UTC date.
// Cancelled is how many of them are cancelled by now.
type DailyRegistrations struct {
	Date       string `json:"date"`
	Registered int    `json:"registered"`
	Cancelled  int    `json:"cancelled"`
}

type EventAnalytics struct {
	EventID  string               `json:"event_id"`
	Capacity int                  `json:"capacity"`
	Active   int                  `json:"active"`
	FillRate float64              `json:"fill_rate"`
	ByStatus []StatusCount        `json:"by_status"`
	Daily    []DailyRegistrations `json:"daily"`
}

// EventSummary is one row of a batch request.
type EventSummary struct {
	EventID  string `json:"event_id"`
	Capacity int    `json:"capacity"`
	Active   int    `json:"active"`
	Attended int    `json:"attended"`
}

type Store interface {
	StatusCounts(ctx context.Context, eventID string) ([]StatusCount, error)
	Capacity(ctx context.Context, eventID string) (int, error)
	ListRegistrations(ctx context.Context, eventID string, opts RegistrationOptions) ([]models.Registration, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetEventAnalytics returns the status breakdown and daily signups of an event
func (s *Service) GetEventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	summary, byStatus, err := s.summarize(ctx, eventID)
	if err != nil {
		return nil, err
	}

	regs, err := s.store.ListRegistrations(ctx, eventID, RegistrationOptions{})
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	result := &EventAnalytics{
		EventID:  eventID,
		Capacity: summary.Capacity,
		Active:   summary.Active,
		ByStatus: byStatus,
		Daily:    dailyRegistrations(regs),
	}
	if summary.Capacity > 0 {
		result.FillRate = float64(summary.Active) / float64(summary.Capacity)
	}
	return result, nil
}

// GetEventRegistrations lists registrants for the organizer view
func (s *Service) GetEventRegistrations(ctx context.Context, eventID string, opts RegistrationOptions) ([]models.Registration, error) {
	regs, err := s.store.ListRegistrations(ctx, eventID, opts)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	return regs, nil
}

// GetBatchSummaries returns one summary per event id, in request order
func (s *Service) GetBatchSummaries(ctx context.Context, eventIDs []string) ([]EventSummary, error) {
	out := make([]EventSummary, 0, len(eventIDs))
	for _, id := range eventIDs {
		summary, _, err := s.summarize(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Service) summarize(ctx context.Context, eventID string) (EventSummary, []StatusCount, error) {
	counts, err := s.store.StatusCounts(ctx, eventID)
	if err != nil {
		return EventSummary{}, nil, fmt.Errorf("count statuses: %w", err)
	}
	capacity, err := s.store.Capacity(ctx, eventID)
	if err != nil {
		return EventSummary{}, nil, fmt.Errorf("load capacity: %w", err)
	}

	summary := EventSummary{EventID: eventID, Capacity: capacity}
	for _, c := range counts {
		if c.Status.Active() {
			summary.Active += c.Count
		}
		if c.Status == models.StatusAttended {
			summary.Attended = c.Count
		}
	}
	if counts == nil {
		counts = []StatusCount{}
	}
	return summary, counts, nil
}

func dailyRegistrations(regs []models.Registration) []DailyRegistrations {
	byDate := map[string]*DailyRegistrations{}
	for _, r := range regs {
		date := r.RegisteredAt.UTC().Format("2006-01-02")
		d, ok := byDate[date]
		if !ok {
			d = &DailyRegistrations{Date: date}
			byDate[date] = d
		}
		d.Registered++
		if r.Status == models.StatusCancelled {
			d.Cancelled++
		}
	}

	out := make([]DailyRegistrations, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
