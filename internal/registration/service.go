package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/submission"
)

// statusUpdateAttempts bounds the read/compare-and-set loop of SetStatus.
// The transition graph has no cycles and at most two edges on any path,
// so three reads always observe a settled record.
const statusUpdateAttempts = 3

// Store is the registration persistence the service relies on.
type Store interface {
	// RunInEventTx runs fn while holding the event's row lock so capacity
	// checks and inserts for one event are serialized.
	RunInEventTx(ctx context.Context, eventID string, fn func(tx EventTx) error) error
	// GetRegistration returns nil, nil when the id is unknown.
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	// CompareAndSetStatus updates the status only if it still equals from.
	CompareAndSetStatus(ctx context.Context, id string, from, to models.RegistrationStatus, at time.Time) (bool, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
}

// EventTx is the view of one event inside RunInEventTx.
type EventTx interface {
	Settings() models.EventSettings
	ActiveRegistration(ctx context.Context, participantID string) (*models.Registration, error)
	CountActive(ctx context.Context) (int, error)
	Schema(ctx context.Context) ([]models.FieldDefinition, error)
	Insert(ctx context.Context, reg *models.Registration) error
}

// CapacityLock serializes submissions for one event across replicas ahead of the database.
type CapacityLock interface {
	AcquireEventLock(ctx context.Context, eventID, owner string) (bool, error)
	ReleaseEventLock(ctx context.Context, eventID, owner string) error
}

type Publisher interface {
	PublishRegistrationEvent(ctx context.Context, evt models.RegistrationEventDto) error
}

type Feed interface {
	Emit(evt models.RegistrationEventDto)
}

type Service struct {
	Store     Store
	Lock      CapacityLock // optional
	Publisher Publisher    // optional
	Feed      Feed         // optional
	Logger    *logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		Store:  store,
		Logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
}

// Submit validates the answers and creates a registered Registration.
// Checks run in order: already registered, capacity, validation.
func (s *Service) Submit(ctx context.Context, eventID, participantID string, answers models.Submission) (*models.Registration, error) {
	eventID, participantID = strings.TrimSpace(eventID), strings.TrimSpace(participantID)
	if eventID == "" || participantID == "" {
		return nil, fmt.Errorf("%w: event and participant are required", ErrInvalidInput)
	}

	// Step 1: Take the cross-replica lock (the row lock below stays authoritative)
	if s.Lock != nil {
		owner := s.newID()
		ok, err := s.Lock.AcquireEventLock(ctx, eventID, owner)
		switch {
		case err != nil:
			s.Logger.Warn("REDIS", fmt.Sprintf("Capacity lock unavailable for event %s, relying on row lock: %v", eventID, err))
		case !ok:
			return nil, &StorageError{Op: "acquire capacity lock", Err: ErrLockContended}
		default:
			defer func() {
				if err := s.Lock.ReleaseEventLock(context.WithoutCancel(ctx), eventID, owner); err != nil {
					s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release capacity lock for event %s: %v", eventID, err))
				}
			}()
		}
	}

	var (
		created *models.Registration
		active  int
	)

	// Step 2: Check and insert under the event row lock
	err := s.Store.RunInEventTx(ctx, eventID, func(tx EventTx) error {
		existing, err := tx.ActiveRegistration(ctx, participantID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &AlreadyRegisteredError{RegistrationID: existing.ID}
		}

		if capacity := tx.Settings().Capacity; capacity > 0 {
			count, err := tx.CountActive(ctx)
			if err != nil {
				return err
			}
			if count >= capacity {
				return ErrCapacityExceeded
			}
		}

		fields, err := tx.Schema(ctx)
		if err != nil {
			return err
		}
		if res := submission.Validate(fields, answers); !res.OK {
			return &ValidationError{MissingFields: res.MissingFields}
		}

		now := s.now()
		reg := &models.Registration{
			ID:            s.newID(),
			EventID:       eventID,
			ParticipantID: participantID,
			Status:        models.StatusRegistered,
			Answers:       answers.Clone(),
			RegisteredAt:  now,
			UpdatedAt:     now,
		}
		if reg.Answers == nil {
			reg.Answers = models.Submission{}
		}
		if err := tx.Insert(ctx, reg); err != nil {
			return err
		}

		if active, err = tx.CountActive(ctx); err != nil {
			return err
		}
		created = reg
		return nil
	})
	if err != nil {
		if !isBusinessError(err) {
			s.Logger.Error("REGISTER", fmt.Sprintf("Submit failed for event %s participant %s: %v", eventID, participantID, err))
		}
		return nil, WrapStorage("submit", err)
	}

	s.Logger.LogRegistration("CREATED", created.ID, fmt.Sprintf("event %s participant %s (%d active)", eventID, participantID, active))

	// Step 3: Notify downstream consumers
	s.publish(ctx, models.EventRegistrationCreated, created, "", active)
	return created, nil
}

// SetStatus moves a registration to a new status. Requesting the current status succeeds without change.
func (s *Service) SetStatus(ctx context.Context, id string, to models.RegistrationStatus) (*models.Registration, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	for attempt := 0; attempt < statusUpdateAttempts; attempt++ {
		reg, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if reg.Status == to {
			return reg, nil
		}
		if !CanTransition(reg.Status, to) {
			return nil, &TransitionError{From: reg.Status, To: to}
		}

		now := s.now()
		ok, err := s.Store.CompareAndSetStatus(ctx, id, reg.Status, to, now)
		if err != nil {
			return nil, WrapStorage("set status", err)
		}
		if !ok {
			s.Logger.Debug("REGISTER", fmt.Sprintf("Registration %s changed under update, retrying", id))
			continue
		}

		previous := reg.Status
		reg.Status = to
		reg.UpdatedAt = now
		s.Logger.LogRegistration("STATUS", id, fmt.Sprintf("%s → %s", previous, to))

		s.publish(ctx, models.EventRegistrationStatusChanged, reg, previous, -1)
		return reg, nil
	}

	return nil, &StorageError{Op: "set status", Err: ErrConcurrentUpdate}
}

// CancelBySelf cancels a registration on behalf of the participant who owns it.
func (s *Service) CancelBySelf(ctx context.Context, id, participantID string) (*models.Registration, error) {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != participantID {
		s.Logger.LogSecurity("CANCEL_DENIED", fmt.Sprintf("participant %s tried to cancel registration %s", participantID, id))
		return nil, ErrForbidden
	}
	return s.SetStatus(ctx, id, models.StatusCancelled)
}

// ActiveCount is recomputed from stored rows on every call.
func (s *Service) ActiveCount(ctx context.Context, eventID string) (int, error) {
	n, err := s.Store.CountActive(ctx, eventID)
	if err != nil {
		return 0, WrapStorage("count active", err)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.Store.GetRegistration(ctx, id)
	if err != nil {
		return nil, WrapStorage("get registration", err)
	}
	if reg == nil {
		return nil, ErrNotFound
	}
	return reg, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	regs, err := s.Store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, WrapStorage("list registrations", err)
	}
	return regs, nil
}

// publish never fails the operation; delivery problems are logged.
// A negative active count is recomputed.
func (s *Service) publish(ctx context.Context, eventType string, reg *models.Registration, previous models.RegistrationStatus, active int) {
	if s.Publisher == nil && s.Feed == nil {
		return
	}

	if active < 0 {
		n, err := s.Store.CountActive(ctx, reg.EventID)
		if err != nil {
			s.Logger.Warn("REGISTER", fmt.Sprintf("Active count unavailable for event %s: %v", reg.EventID, err))
		}
		active = n
	}

	evt, err := models.NewRegistrationEventDto(eventType, reg, previous, active)
	if err != nil {
		s.Logger.Error("REGISTER", fmt.Sprintf("Cannot build %s event for %s: %v", eventType, reg.ID, err))
		return
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishRegistrationEvent(ctx, evt); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, reg.ID, err))
		}
	}
	if s.Feed != nil {
		s.Feed.Emit(evt)
	}
}

// IsStorageError reports whether err is an infrastructure failure.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
