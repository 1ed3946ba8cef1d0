package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

// lookaheadDays is the fixed generation window the recurring driver advances
// each schedule by per invocation.
const lookaheadDays = 14

// RecurringScheduleStore captures the persistence interactions needed by the
// recurring driver and the template administration operations.
type RecurringScheduleStore interface {
	CreateRecurringSchedule(ctx context.Context, schedule RecurringSchedule) (RecurringSchedule, error)
	GetRecurringSchedule(ctx context.Context, id string) (RecurringSchedule, error)
	SaveRecurringSchedule(ctx context.Context, schedule RecurringSchedule) (RecurringSchedule, error)
	ListRecurringSchedules(ctx context.Context, activeOnly bool) ([]RecurringSchedule, error)
	DeleteRecurringSchedule(ctx context.Context, id string) error
}

// auditPlanner is the slice of PlannerService the driver needs.
type auditPlanner interface {
	GeneratePreview(ctx context.Context, params PlanParams) (PreviewResult, error)
	CommitPreviews(ctx context.Context, previews []AuditPreview) (CommitResult, error)
}

// RecurringService advances every active recurring schedule by the lookahead
// window, creating audits through the planner and persisting the watermark.
type RecurringService struct {
	schedules   RecurringScheduleStore
	planner     auditPlanner
	reports     *runReportCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRecurringService wires dependencies for the recurring batch driver.
func NewRecurringService(schedules RecurringScheduleStore, planner auditPlanner, idGenerator func() string, now func() time.Time) *RecurringService {
	return NewRecurringServiceWithLogger(schedules, planner, idGenerator, now, nil)
}

// NewRecurringServiceWithLogger constructs a RecurringService with a specified logger.
func NewRecurringServiceWithLogger(schedules RecurringScheduleStore, planner auditPlanner, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RecurringService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RecurringService{
		schedules:   schedules,
		planner:     planner,
		reports:     newRunReportCache(0, 0, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RecurringService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RecurringService", operation, attrs...)
}

// GenerateRecurringAudits runs one driver pass: for each active schedule it
// computes the window [watermark+1 day clamped to today, today+14 days],
// previews and commits audits, and advances the watermark on success. One
// schedule's failure never aborts the remaining schedules.
func (s *RecurringService) GenerateRecurringAudits(ctx context.Context) (result RecurringRunResult, err error) {
	if s == nil {
		return RecurringRunResult{}, fmt.Errorf("RecurringService is nil")
	}
	if s.schedules == nil || s.planner == nil {
		return RecurringRunResult{}, fmt.Errorf("recurring driver not configured")
	}

	result.RunID = s.idGenerator()
	result.RanAt = s.now()

	logger := s.loggerWith(ctx, "GenerateRecurringAudits", "run_id", result.RunID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recurring run failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.reports.Store(result)
		logger.InfoContext(ctx, "recurring run finished",
			"processed", result.Processed,
			"audits_created", result.AuditsCreated,
			"errors", len(result.Errors))
	}()

	schedules, err := s.schedules.ListRecurringSchedules(ctx, true)
	if err != nil {
		return RecurringRunResult{}, err
	}

	today := scheduling.StartOfDay(result.RanAt)
	endDate := today.AddDate(0, 0, lookaheadDays)

	for _, schedule := range schedules {
		result.Processed++

		startDate := today
		if schedule.LastGeneratedDate != nil {
			startDate = scheduling.StartOfDay(*schedule.LastGeneratedDate).AddDate(0, 0, 1)
		}
		// Never backfill a historical backlog after a long pause.
		if startDate.Before(today) {
			startDate = today
		}
		if startDate.After(endDate) {
			logger.DebugContext(ctx, "schedule up to date", "schedule", schedule.Name)
			continue
		}

		created, conflicts, runErr := s.advanceSchedule(ctx, schedule, startDate, endDate)
		// Audits committed before a watermark failure still count.
		result.AuditsCreated += created
		for _, conflict := range conflicts {
			result.Conflicts = append(result.Conflicts, fmt.Sprintf("%s: %s", schedule.Name, conflict))
		}
		if runErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", schedule.Name, runErr))
		}
	}

	return result, nil
}

// advanceSchedule previews and commits one schedule's window, then persists
// the new watermark. The watermark only moves when generation succeeded.
func (s *RecurringService) advanceSchedule(ctx context.Context, schedule RecurringSchedule, startDate, endDate time.Time) (int, []string, error) {
	preview, err := s.planner.GeneratePreview(ctx, PlanParams{
		SiteIDs:          schedule.SiteIDs,
		StartDate:        startDate,
		EndDate:          endDate,
		Frequency:        schedule.Frequency,
		AuditorPool:      schedule.AuditorPool,
		AuditorsPerAudit: schedule.AuditorsPerAudit,
		MaxAuditsPerDay:  schedule.MaxAuditsPerDay,
	})
	if err != nil {
		return 0, nil, err
	}

	commit, err := s.planner.CommitPreviews(ctx, preview.Previews)
	if err != nil {
		return 0, preview.Conflicts, err
	}

	conflicts := make([]string, 0, len(preview.Conflicts)+len(commit.Conflicts))
	conflicts = append(conflicts, preview.Conflicts...)
	conflicts = append(conflicts, commit.Conflicts...)

	schedule.LastGeneratedDate = &endDate
	schedule.UpdatedAt = s.now()
	if _, err := s.schedules.SaveRecurringSchedule(ctx, schedule); err != nil {
		return commit.AuditsCreated, conflicts, fmt.Errorf("failed to advance watermark: %w", err)
	}

	return commit.AuditsCreated, conflicts, nil
}

// CreateRecurringSchedule validates and persists a new template for
// administrators. The watermark starts unset so the first driver run begins
// generating from today.
func (s *RecurringService) CreateRecurringSchedule(ctx context.Context, params CreateRecurringScheduleParams) (RecurringSchedule, error) {
	if s == nil {
		return RecurringSchedule{}, fmt.Errorf("RecurringService is nil")
	}
	if !params.Principal.IsAdmin() {
		return RecurringSchedule{}, ErrUnauthorized
	}
	if s.schedules == nil {
		return RecurringSchedule{}, fmt.Errorf("schedule store not configured")
	}

	input := params.Input
	vErr := &ValidationError{}
	if len(input.Name) == 0 {
		vErr.add("name", "name is required")
	}
	if len(input.SiteIDs) == 0 {
		vErr.add("site_ids", "at least one site is required")
	}
	if input.AuditorsPerAudit <= 0 {
		vErr.add("auditors_per_audit", "auditors per audit must be positive")
	}
	if _, err := scheduling.ParseFrequency(string(input.Frequency)); err != nil {
		vErr.add("frequency", "frequency must be daily, weekly or monthly")
	}
	if input.MaxAuditsPerDay < 0 {
		vErr.add("max_audits_per_day", "daily cap must not be negative")
	}
	if vErr.HasErrors() {
		return RecurringSchedule{}, vErr
	}

	createdAt := s.now()
	schedule := RecurringSchedule{
		ID:               s.idGenerator(),
		Name:             input.Name,
		SiteIDs:          append([]string(nil), input.SiteIDs...),
		Frequency:        input.Frequency,
		AuditorPool:      append([]string(nil), input.AuditorPool...),
		AuditorsPerAudit: input.AuditorsPerAudit,
		MaxAuditsPerDay:  input.MaxAuditsPerDay,
		Active:           input.Active,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}

	return s.schedules.CreateRecurringSchedule(ctx, schedule)
}

// SetRecurringScheduleActive toggles a template's active flag.
func (s *RecurringService) SetRecurringScheduleActive(ctx context.Context, principal Principal, scheduleID string, active bool) (RecurringSchedule, error) {
	if s == nil {
		return RecurringSchedule{}, fmt.Errorf("RecurringService is nil")
	}
	if !principal.IsAdmin() {
		return RecurringSchedule{}, ErrUnauthorized
	}
	if s.schedules == nil {
		return RecurringSchedule{}, fmt.Errorf("schedule store not configured")
	}

	schedule, err := s.schedules.GetRecurringSchedule(ctx, scheduleID)
	if err != nil {
		return RecurringSchedule{}, err
	}
	schedule.Active = active
	schedule.UpdatedAt = s.now()
	return s.schedules.SaveRecurringSchedule(ctx, schedule)
}

// ListRecurringSchedules returns templates for administrators.
func (s *RecurringService) ListRecurringSchedules(ctx context.Context, principal Principal, activeOnly bool) ([]RecurringSchedule, error) {
	if s == nil {
		return nil, fmt.Errorf("RecurringService is nil")
	}
	if !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if s.schedules == nil {
		return nil, nil
	}
	return s.schedules.ListRecurringSchedules(ctx, activeOnly)
}

// DeleteRecurringSchedule removes a template.
func (s *RecurringService) DeleteRecurringSchedule(ctx context.Context, principal Principal, scheduleID string) error {
	if s == nil {
		return fmt.Errorf("RecurringService is nil")
	}
	if !principal.IsAdmin() {
		return ErrUnauthorized
	}
	if s.schedules == nil {
		return fmt.Errorf("schedule store not configured")
	}
	return s.schedules.DeleteRecurringSchedule(ctx, scheduleID)
}

// LastRunReport returns the most recent cached run report, if any.
func (s *RecurringService) LastRunReport() (RecurringRunResult, bool) {
	if s == nil {
		return RecurringRunResult{}, false
	}
	return s.reports.Latest()
}

// RunReport returns the cached report for a specific run id, if any.
func (s *RecurringService) RunReport(runID string) (RecurringRunResult, bool) {
	if s == nil {
		return RecurringRunResult{}, false
	}
	return s.reports.Get(runID)
}
