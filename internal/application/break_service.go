package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

// BreakRepository captures the persistence operations needed by the break
// service.
type BreakRepository interface {
	CreateBreak(ctx context.Context, record Break) (Break, error)
	GetBreak(ctx context.Context, id string) (Break, error)
	UpdateBreak(ctx context.Context, record Break) (Break, error)
	DeleteBreak(ctx context.Context, id string) error
	ListBreaksForUser(ctx context.Context, userID string) ([]Break, error)
}

// conflictResolver is the slice of ConflictService the break service needs.
type conflictResolver interface {
	ResolveAuditConflicts(ctx context.Context, userID string, breakStart, breakEnd time.Time) (ConflictResolution, error)
}

// BreakService manages per-user unavailability windows. Registering or moving
// a break immediately reassigns the scheduled audits it collides with.
type BreakService struct {
	breaks      BreakRepository
	conflicts   conflictResolver
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBreakService wires dependencies for the break service.
func NewBreakService(breaks BreakRepository, conflicts conflictResolver, idGenerator func() string, now func() time.Time) *BreakService {
	return NewBreakServiceWithLogger(breaks, conflicts, idGenerator, now, nil)
}

// NewBreakServiceWithLogger constructs a BreakService with a specified logger.
func NewBreakServiceWithLogger(breaks BreakRepository, conflicts conflictResolver, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BreakService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BreakService{
		breaks:      breaks,
		conflicts:   conflicts,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BreakService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BreakService", operation, attrs...)
}

// CreateBreak registers an unavailability window and resolves any audits the
// user was already scheduled for inside it. Users register their own breaks;
// administrators may register breaks for anyone.
func (s *BreakService) CreateBreak(ctx context.Context, params CreateBreakParams) (record Break, resolution ConflictResolution, err error) {
	if s == nil {
		err = fmt.Errorf("BreakService is nil")
		return
	}
	if s.breaks == nil {
		err = fmt.Errorf("break repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBreak", "user_id", params.Input.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "break creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("break_id", record.ID).InfoContext(ctx, "break created",
			"resolved", resolution.Resolved, "failed", resolution.Failed)
	}()

	input, vErr := s.normalizeBreakInput(params.Principal, params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	record = Break{
		ID:        s.idGenerator(),
		UserID:    input.UserID,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	record, err = s.breaks.CreateBreak(ctx, record)
	if err != nil {
		return
	}

	resolution, err = s.resolve(ctx, record)
	return
}

// UpdateBreak moves an existing window and re-runs conflict resolution for
// the new window.
func (s *BreakService) UpdateBreak(ctx context.Context, params UpdateBreakParams) (record Break, resolution ConflictResolution, err error) {
	if s == nil {
		err = fmt.Errorf("BreakService is nil")
		return
	}
	if s.breaks == nil {
		err = fmt.Errorf("break repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateBreak", "break_id", params.BreakID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "break update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "break updated", "resolved", resolution.Resolved, "failed", resolution.Failed)
	}()

	var existing Break
	existing, err = s.breaks.GetBreak(ctx, params.BreakID)
	if err != nil {
		return
	}
	if !params.Principal.IsAdmin() && params.Principal.UserID != existing.UserID {
		err = ErrUnauthorized
		return
	}

	input := params.Input
	input.UserID = existing.UserID
	input, vErr := s.normalizeBreakInput(params.Principal, input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	existing.StartDate = input.StartDate
	existing.EndDate = input.EndDate
	existing.UpdatedAt = s.now()

	record, err = s.breaks.UpdateBreak(ctx, existing)
	if err != nil {
		return
	}

	resolution, err = s.resolve(ctx, record)
	return
}

// DeleteBreak removes a window. Already-reassigned audits stay as they are;
// freeing a date never claws an assignment back.
func (s *BreakService) DeleteBreak(ctx context.Context, principal Principal, breakID string) error {
	if s == nil {
		return fmt.Errorf("BreakService is nil")
	}
	if s.breaks == nil {
		return fmt.Errorf("break repository not configured")
	}

	existing, err := s.breaks.GetBreak(ctx, breakID)
	if err != nil {
		return err
	}
	if !principal.IsAdmin() && principal.UserID != existing.UserID {
		return ErrUnauthorized
	}

	return s.breaks.DeleteBreak(ctx, breakID)
}

// ListBreaks returns the breaks registered for one user. Users see their own;
// administrators see anyone's.
func (s *BreakService) ListBreaks(ctx context.Context, principal Principal, userID string) ([]Break, error) {
	if s == nil {
		return nil, fmt.Errorf("BreakService is nil")
	}
	if s.breaks == nil {
		return nil, nil
	}
	if userID == "" {
		userID = principal.UserID
	}
	if !principal.IsAdmin() && principal.UserID != userID {
		return nil, ErrUnauthorized
	}
	return s.breaks.ListBreaksForUser(ctx, userID)
}

func (s *BreakService) resolve(ctx context.Context, record Break) (ConflictResolution, error) {
	if s.conflicts == nil {
		return ConflictResolution{}, nil
	}
	return s.conflicts.ResolveAuditConflicts(ctx, record.UserID, record.StartDate, record.EndDate)
}

// normalizeBreakInput checks authorization and coerces dates: times collapse
// to midnight and a zero end date becomes a single day break.
func (s *BreakService) normalizeBreakInput(principal Principal, input BreakInput) (BreakInput, *ValidationError) {
	vErr := &ValidationError{}

	if input.UserID == "" {
		input.UserID = principal.UserID
	}
	if !principal.IsAdmin() && principal.UserID != input.UserID {
		vErr.add("user_id", "only administrators may register breaks for other users")
	}

	if input.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
		return input, vErr
	}

	input.StartDate = scheduling.StartOfDay(input.StartDate)
	if input.EndDate.IsZero() {
		input.EndDate = input.StartDate
	} else {
		input.EndDate = scheduling.StartOfDay(input.EndDate)
	}
	if input.EndDate.Before(input.StartDate) {
		vErr.add("end_date", "end date must not be before start date")
	}

	return input, vErr
}
