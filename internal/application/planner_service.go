package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

// SiteCatalog exposes site tree lookups for expansion.
type SiteCatalog interface {
	GetSite(ctx context.Context, id string) (Site, error)
}

// ChecklistCatalog resolves checklist item references against current
// storage, dropping references to deleted items.
type ChecklistCatalog interface {
	ResolveChecklistItems(ctx context.Context, ids []string) ([]ChecklistItem, error)
}

// AuditPlanStore captures the audit persistence interactions needed by the
// planner.
type AuditPlanStore interface {
	CountAuditsForUserOnDate(ctx context.Context, userID string, date time.Time) (int, error)
	ExistsAuditForSiteOnDate(ctx context.Context, siteID string, date time.Time) (bool, error)
	CreateAudit(ctx context.Context, audit Audit) (Audit, error)
}

// AuditNotifier delivers best-effort assignment notifications. Failures are
// reported per recipient and never abort a commit.
type AuditNotifier interface {
	SendBulkAuditNotifications(ctx context.Context, created []CreatedAuditSummary) (NotificationReport, error)
}

// Shuffler permutes n elements in place through swap. It matches the
// signature of rand.Shuffle so a seeded or no-op source can be injected in
// tests.
type Shuffler func(n int, swap func(i, j int))

// PlannerService generates audit assignment previews and commits accepted
// previews into persistent audits.
type PlannerService struct {
	sites       SiteCatalog
	checklists  ChecklistCatalog
	audits      AuditPlanStore
	notifier    AuditNotifier
	resolver    availabilityResolver
	shuffle     Shuffler
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPlannerService wires dependencies for preview generation and commit.
func NewPlannerService(sites SiteCatalog, checklists ChecklistCatalog, audits AuditPlanStore, users UserDirectory, breaks BreakCalendar, notifier AuditNotifier, idGenerator func() string, now func() time.Time) *PlannerService {
	return NewPlannerServiceWithLogger(sites, checklists, audits, users, breaks, notifier, idGenerator, now, nil, nil)
}

// NewPlannerServiceWithLogger additionally accepts a shuffler and logger.
// A nil shuffler falls back to rand.Shuffle.
func NewPlannerServiceWithLogger(sites SiteCatalog, checklists ChecklistCatalog, audits AuditPlanStore, users UserDirectory, breaks BreakCalendar, notifier AuditNotifier, idGenerator func() string, now func() time.Time, shuffle Shuffler, logger *slog.Logger) *PlannerService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	return &PlannerService{
		sites:       sites,
		checklists:  checklists,
		audits:      audits,
		notifier:    notifier,
		resolver:    availabilityResolver{users: users, breaks: breaks},
		shuffle:     shuffle,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *PlannerService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PlannerService", operation, attrs...)
}

// AvailableAuditors resolves the auditors eligible to work the given date,
// optionally restricted to an allow-list of user ids.
func (s *PlannerService) AvailableAuditors(ctx context.Context, date time.Time, pool []string) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("PlannerService is nil")
	}
	return s.resolver.available(ctx, date, pool)
}

// GeneratePreview produces the full list of planned (site, date, auditors)
// assignments for the request plus human readable conflict messages for
// dates or sites that could not be covered. It performs no writes and is
// safe to call repeatedly.
func (s *PlannerService) GeneratePreview(ctx context.Context, params PlanParams) (result PreviewResult, err error) {
	if s == nil {
		return PreviewResult{}, fmt.Errorf("PlannerService is nil")
	}

	logger := s.loggerWith(ctx, "GeneratePreview",
		"sites", len(params.SiteIDs),
		"frequency", string(params.Frequency),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "preview generation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "preview generated", "previews", len(result.Previews), "conflicts", len(result.Conflicts))
	}()

	if vErr := validatePlanParams(params); vErr.HasErrors() {
		return PreviewResult{}, vErr
	}

	dates, err := scheduling.Dates(params.StartDate, params.EndDate, params.Frequency)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("frequency", "frequency must be daily, weekly or monthly")
		return PreviewResult{}, vErr
	}
	if len(dates) == 0 {
		return PreviewResult{}, nil
	}

	targets, err := s.expandSchedulableSites(ctx, params.SiteIDs)
	if err != nil {
		return PreviewResult{}, err
	}
	if len(targets) == 0 {
		result.Conflicts = append(result.Conflicts, "no sites with active checklist items matched the selection")
		return result, nil
	}

	for _, date := range dates {
		available, err := s.resolver.available(ctx, date, params.AuditorPool)
		if err != nil {
			return PreviewResult{}, err
		}

		if params.MaxAuditsPerDay > 0 {
			available, err = s.filterByDailyCap(ctx, available, date, params.MaxAuditsPerDay)
			if err != nil {
				return PreviewResult{}, err
			}
		}

		s.shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})

		if len(available) < params.AuditorsPerAudit {
			result.Conflicts = append(result.Conflicts, fmt.Sprintf(
				"insufficient auditors for %s: needed %d, available %d",
				date.Format("2006-01-02"), params.AuditorsPerAudit, len(available)))
			continue
		}

		// Fresh rotation per date so each day restarts from the front of
		// its own shuffled pool.
		rotation := scheduling.NewRotation(toRotationPool(available))
		for _, target := range targets {
			if rotation.Len() < params.AuditorsPerAudit {
				result.Conflicts = append(result.Conflicts, fmt.Sprintf(
					"not enough distinct auditors for site %s on %s",
					target.Name, date.Format("2006-01-02")))
				continue
			}
			assigned := rotation.Next(params.AuditorsPerAudit)
			result.Previews = append(result.Previews, AuditPreview{
				SiteID:   target.ID,
				SiteName: target.Name,
				Date:     date,
				Auditors: toAuditorSummaries(assigned),
			})
		}
	}

	return result, nil
}

// CommitPreviews creates one persistent audit per accepted preview entry,
// sequentially so duplicate detection observes earlier creations in the
// same batch. Duplicates, vanished checklists and per-item storage failures
// are recorded as conflicts and skipped; the batch always runs to the end.
func (s *PlannerService) CommitPreviews(ctx context.Context, previews []AuditPreview) (result CommitResult, err error) {
	if s == nil {
		return CommitResult{}, fmt.Errorf("PlannerService is nil")
	}
	if s.audits == nil {
		return CommitResult{}, fmt.Errorf("audit store not configured")
	}

	logger := s.loggerWith(ctx, "CommitPreviews", "previews", len(previews))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "commit failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "commit finished", "created", result.AuditsCreated, "skipped", result.AuditsSkipped)
	}()

	for _, preview := range previews {
		date := scheduling.StartOfDay(preview.Date)

		created, conflict := s.commitOne(ctx, preview, date)
		if conflict != "" {
			result.AuditsSkipped++
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}
		result.AuditsCreated++
		result.CreatedAudits = append(result.CreatedAudits, created)
	}

	if len(result.CreatedAudits) > 0 && s.notifier != nil {
		report, notifyErr := s.notifier.SendBulkAuditNotifications(ctx, result.CreatedAudits)
		if notifyErr != nil {
			logger.WarnContext(ctx, "audit notifications failed", "error", notifyErr)
		} else {
			logger.InfoContext(ctx, "audit notifications sent", "sent", report.TotalSent, "failed", report.TotalFailed)
		}
	}

	return result, nil
}

// commitOne attempts a single preview entry. A non-empty conflict string
// means the entry was skipped for that recoverable reason.
func (s *PlannerService) commitOne(ctx context.Context, preview AuditPreview, date time.Time) (CreatedAuditSummary, string) {
	day := date.Format("2006-01-02")

	// Advisory fast path; the storage layer's (site, date) uniqueness
	// constraint is the true invariant.
	exists, err := s.audits.ExistsAuditForSiteOnDate(ctx, preview.SiteID, date)
	if err != nil {
		return CreatedAuditSummary{}, fmt.Sprintf("site %s on %s: %v", preview.SiteName, day, err)
	}
	if exists {
		return CreatedAuditSummary{}, fmt.Sprintf("audit for site %s already exists on %s", preview.SiteName, day)
	}

	site, err := s.sites.GetSite(ctx, preview.SiteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CreatedAuditSummary{}, fmt.Sprintf("site %s no longer exists", preview.SiteName)
		}
		return CreatedAuditSummary{}, fmt.Sprintf("site %s on %s: %v", preview.SiteName, day, err)
	}

	items, err := s.checklists.ResolveChecklistItems(ctx, site.CheckIDs)
	if err != nil {
		return CreatedAuditSummary{}, fmt.Sprintf("site %s on %s: %v", preview.SiteName, day, err)
	}
	if len(items) == 0 {
		return CreatedAuditSummary{}, fmt.Sprintf("site %s has no remaining checklist items", preview.SiteName)
	}

	results := make([]CheckResult, 0, len(items))
	for _, item := range items {
		results = append(results, CheckResult{CheckID: item.ID, Text: item.Text})
	}

	participants := make([]string, 0, len(preview.Auditors))
	for _, auditor := range preview.Auditors {
		participants = append(participants, auditor.ID)
	}

	createdAt := s.now()
	audit := Audit{
		ID:             s.idGenerator(),
		SiteID:         site.ID,
		SiteName:       site.Name,
		ParticipantIDs: participants,
		OnDate:         date,
		Results:        results,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	persisted, err := s.audits.CreateAudit(ctx, audit)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return CreatedAuditSummary{}, fmt.Sprintf("audit for site %s already exists on %s", preview.SiteName, day)
		}
		return CreatedAuditSummary{}, fmt.Sprintf("site %s on %s: %v", preview.SiteName, day, err)
	}

	return CreatedAuditSummary{
		AuditID:        persisted.ID,
		SiteID:         persisted.SiteID,
		SiteName:       persisted.SiteName,
		Date:           persisted.OnDate,
		ParticipantIDs: persisted.ParticipantIDs,
		CheckCount:     len(persisted.Results),
	}, ""
}

// ScheduleAudits is the one-shot combined operation: generate a preview and
// commit it immediately, concatenating conflicts from both phases.
func (s *PlannerService) ScheduleAudits(ctx context.Context, params PlanParams) (ScheduleResult, error) {
	preview, err := s.GeneratePreview(ctx, params)
	if err != nil {
		return ScheduleResult{}, err
	}

	commit, err := s.CommitPreviews(ctx, preview.Previews)
	if err != nil {
		return ScheduleResult{}, err
	}

	conflicts := make([]string, 0, len(preview.Conflicts)+len(commit.Conflicts))
	conflicts = append(conflicts, preview.Conflicts...)
	conflicts = append(conflicts, commit.Conflicts...)

	return ScheduleResult{
		Success:       true,
		AuditsCreated: commit.AuditsCreated,
		AuditsSkipped: commit.AuditsSkipped,
		Conflicts:     conflicts,
	}, nil
}

type siteTarget struct {
	ID   string
	Name string
}

// expandSchedulableSites resolves the selection (possibly parent nodes) to
// the deduplicated, discovery-ordered set of sites that still carry at
// least one existing checklist item. Missing site ids are skipped silently;
// the visited set guarantees termination even on a corrupted tree.
func (s *PlannerService) expandSchedulableSites(ctx context.Context, siteIDs []string) ([]siteTarget, error) {
	if s.sites == nil {
		return nil, fmt.Errorf("site catalog not configured")
	}

	visited := make(map[string]struct{})
	targets := make([]siteTarget, 0)

	var visit func(id string) error
	visit = func(id string) error {
		if _, seen := visited[id]; seen {
			return nil
		}
		visited[id] = struct{}{}

		site, err := s.sites.GetSite(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		if len(site.CheckIDs) > 0 && s.checklists != nil {
			items, err := s.checklists.ResolveChecklistItems(ctx, site.CheckIDs)
			if err != nil {
				return err
			}
			if len(items) > 0 {
				targets = append(targets, siteTarget{ID: site.ID, Name: site.Name})
			}
		}

		for _, childID := range site.ChildIDs {
			if err := visit(childID); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range siteIDs {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// filterByDailyCap keeps only auditors with fewer than cap assignments on
// the date. A non-positive cap is the identity.
func (s *PlannerService) filterByDailyCap(ctx context.Context, auditors []User, date time.Time, maxPerDay int) ([]User, error) {
	if maxPerDay <= 0 || s.audits == nil {
		return auditors, nil
	}

	kept := make([]User, 0, len(auditors))
	for _, auditor := range auditors {
		count, err := s.audits.CountAuditsForUserOnDate(ctx, auditor.ID, scheduling.StartOfDay(date))
		if err != nil {
			return nil, err
		}
		if count < maxPerDay {
			kept = append(kept, auditor)
		}
	}
	return kept, nil
}

func validatePlanParams(params PlanParams) *ValidationError {
	vErr := &ValidationError{}
	if len(params.SiteIDs) == 0 {
		vErr.add("site_ids", "at least one site is required")
	}
	if params.AuditorsPerAudit <= 0 {
		vErr.add("auditors_per_audit", "auditors per audit must be positive")
	}
	if params.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}
	if params.EndDate.IsZero() {
		vErr.add("end_date", "end date is required")
	}
	return vErr
}

func toRotationPool(users []User) []scheduling.Auditor {
	pool := make([]scheduling.Auditor, 0, len(users))
	for _, user := range users {
		pool = append(pool, scheduling.Auditor{ID: user.ID, Name: user.DisplayName})
	}
	return pool
}

func toAuditorSummaries(auditors []scheduling.Auditor) []AuditorSummary {
	out := make([]AuditorSummary, 0, len(auditors))
	for _, auditor := range auditors {
		out = append(out, AuditorSummary{ID: auditor.ID, Name: auditor.Name})
	}
	return out
}
