package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

type siteCatalogStub struct {
	sites map[string]Site
	err   error
}

func (s *siteCatalogStub) GetSite(ctx context.Context, id string) (Site, error) {
	if s.err != nil {
		return Site{}, s.err
	}
	site, ok := s.sites[id]
	if !ok {
		return Site{}, ErrNotFound
	}
	return site, nil
}

type checklistCatalogStub struct {
	items map[string]ChecklistItem
	err   error
}

func (s *checklistCatalogStub) ResolveChecklistItems(ctx context.Context, ids []string) ([]ChecklistItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]ChecklistItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// auditStoreStub emulates the storage layer's (site, date) uniqueness.
type auditStoreStub struct {
	audits    []Audit
	createErr error
}

func (s *auditStoreStub) CountAuditsForUserOnDate(ctx context.Context, userID string, date time.Time) (int, error) {
	count := 0
	for _, audit := range s.audits {
		if !scheduling.SameDay(audit.OnDate, date) {
			continue
		}
		for _, id := range audit.ParticipantIDs {
			if id == userID {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *auditStoreStub) ExistsAuditForSiteOnDate(ctx context.Context, siteID string, date time.Time) (bool, error) {
	for _, audit := range s.audits {
		if audit.SiteID == siteID && scheduling.SameDay(audit.OnDate, date) {
			return true, nil
		}
	}
	return false, nil
}

func (s *auditStoreStub) CreateAudit(ctx context.Context, audit Audit) (Audit, error) {
	if s.createErr != nil {
		return Audit{}, s.createErr
	}
	for _, existing := range s.audits {
		if existing.SiteID == audit.SiteID && scheduling.SameDay(existing.OnDate, audit.OnDate) {
			return Audit{}, ErrAlreadyExists
		}
	}
	s.audits = append(s.audits, audit)
	return audit, nil
}

type directoryStub struct {
	users []User
	err   error
}

func (s *directoryStub) ListSchedulableUsers(ctx context.Context) ([]User, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]User, 0, len(s.users))
	for _, user := range s.users {
		if user.Role.Schedulable() {
			out = append(out, user)
		}
	}
	return out, nil
}

type breakCalendarStub struct {
	breaks []Break
	err    error
}

func (s *breakCalendarStub) ListBreaksOverlapping(ctx context.Context, start, end time.Time) ([]Break, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Break, 0, len(s.breaks))
	for _, record := range s.breaks {
		recordEnd := record.EndDate
		if recordEnd.IsZero() {
			recordEnd = end
		}
		if record.StartDate.After(end) || recordEnd.Before(start) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

type notifierStub struct {
	batches [][]CreatedAuditSummary
	err     error
}

func (s *notifierStub) SendBulkAuditNotifications(ctx context.Context, created []CreatedAuditSummary) (NotificationReport, error) {
	if s.err != nil {
		return NotificationReport{}, s.err
	}
	s.batches = append(s.batches, created)
	return NotificationReport{TotalSent: len(created)}, nil
}

// noShuffle keeps pool order deterministic so assertions can rely on it.
func noShuffle(n int, swap func(i, j int)) {}

func midnightUTC(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func auditorUser(id string) User {
	return User{ID: id, DisplayName: "Auditor " + id, Role: RoleAuditor}
}

type plannerFixture struct {
	sites      *siteCatalogStub
	checklists *checklistCatalogStub
	audits     *auditStoreStub
	directory  *directoryStub
	breaks     *breakCalendarStub
	notifier   *notifierStub
	planner    *PlannerService
}

func newPlannerFixture(t *testing.T) *plannerFixture {
	t.Helper()

	f := &plannerFixture{
		sites: &siteCatalogStub{sites: map[string]Site{
			"site-a": {ID: "site-a", Name: "Boiler Room", Level: 2, CheckIDs: []string{"check-1"}},
			"site-b": {ID: "site-b", Name: "Server Room", Level: 2, CheckIDs: []string{"check-2"}},
		}},
		checklists: &checklistCatalogStub{items: map[string]ChecklistItem{
			"check-1": {ID: "check-1", SiteID: "site-a", Text: "Pressure gauge in range"},
			"check-2": {ID: "check-2", SiteID: "site-b", Text: "Cooling operational"},
		}},
		audits:    &auditStoreStub{},
		directory: &directoryStub{users: []User{auditorUser("user-1"), auditorUser("user-2"), auditorUser("user-3")}},
		breaks:    &breakCalendarStub{},
		notifier:  &notifierStub{},
	}

	sequence := 0
	f.planner = NewPlannerServiceWithLogger(
		f.sites, f.checklists, f.audits, f.directory, f.breaks, f.notifier,
		func() string { sequence++; return fmt.Sprintf("audit-%d", sequence) },
		func() time.Time { return midnightUTC(2025, 6, 1) },
		noShuffle, nil,
	)
	return f
}

func TestPlannerService_GeneratePreview_RotatesAcrossSitesAndDates(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a", "site-b"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 3),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 2,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", result.Conflicts)
	}
	if len(result.Previews) != 4 {
		t.Fatalf("expected 4 previews (2 sites x 2 dates), got %d", len(result.Previews))
	}

	seen := make(map[string]struct{})
	for _, preview := range result.Previews {
		key := preview.SiteID + preview.Date.Format("2006-01-02")
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate (site, date) pair in preview batch: %s", key)
		}
		seen[key] = struct{}{}

		if len(preview.Auditors) != 2 {
			t.Fatalf("expected 2 auditors per audit, got %d", len(preview.Auditors))
		}
		if preview.Auditors[0].ID == preview.Auditors[1].ID {
			t.Fatalf("auditor %s assigned twice to the same audit", preview.Auditors[0].ID)
		}
	}

	// With a no-op shuffle the rotation restarts per date, so the second
	// site of each day continues where the first stopped.
	first := result.Previews[0]
	second := result.Previews[1]
	if first.Auditors[0].ID != "user-1" || first.Auditors[1].ID != "user-2" {
		t.Fatalf("unexpected first assignment: %+v", first.Auditors)
	}
	if second.Auditors[0].ID != "user-3" || second.Auditors[1].ID != "user-1" {
		t.Fatalf("rotation did not continue across sites: %+v", second.Auditors)
	}
}

func TestPlannerService_GeneratePreview_DistributesAssignmentsEvenlyWithinDate(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a", "site-b"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 2),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 2,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}

	counts := make(map[string]int)
	for _, preview := range result.Previews {
		for _, auditor := range preview.Auditors {
			counts[auditor.ID]++
		}
	}
	min, max := -1, -1
	for _, count := range counts {
		if min == -1 || count < min {
			min = count
		}
		if count > max {
			max = count
		}
	}
	if max-min > 1 {
		t.Fatalf("assignment spread exceeds 1: %v", counts)
	}
}

func TestPlannerService_GeneratePreview_ReportsShortfallAndSkipsDate(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	// Two of three auditors are on break on June 2, leaving one where two
	// are needed.
	f.breaks.breaks = []Break{
		{ID: "break-1", UserID: "user-1", StartDate: midnightUTC(2025, 6, 2), EndDate: midnightUTC(2025, 6, 2)},
		{ID: "break-2", UserID: "user-2", StartDate: midnightUTC(2025, 6, 2), EndDate: midnightUTC(2025, 6, 2)},
	}

	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a", "site-b"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 3),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 2,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}

	if len(result.Previews) != 2 {
		t.Fatalf("expected only the unaffected date to be planned, got %d previews", len(result.Previews))
	}
	for _, preview := range result.Previews {
		if !scheduling.SameDay(preview.Date, midnightUTC(2025, 6, 3)) {
			t.Fatalf("preview planned on short-staffed date: %s", preview.Date)
		}
	}

	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %v", result.Conflicts)
	}
	want := "insufficient auditors for 2025-06-02: needed 2, available 1"
	if result.Conflicts[0] != want {
		t.Fatalf("conflict message = %q, want %q", result.Conflicts[0], want)
	}
}

func TestPlannerService_GeneratePreview_ExpandsParentToLeavesWithItems(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	f.sites.sites = map[string]Site{
		"building": {ID: "building", Name: "HQ", Level: 0, ChildIDs: []string{"floor", "gone"}},
		"floor":    {ID: "floor", Name: "Floor 2", Level: 1, ChildIDs: []string{"room-a", "room-b"}},
		"room-a":   {ID: "room-a", Name: "Lab", Level: 2, CheckIDs: []string{"check-1"}},
		"room-b":   {ID: "room-b", Name: "Storage", Level: 2, CheckIDs: []string{"check-gone"}},
	}

	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"building"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 2),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 1,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}

	if len(result.Previews) != 1 {
		t.Fatalf("expected only the leaf with live checklist items, got %d previews", len(result.Previews))
	}
	if result.Previews[0].SiteID != "room-a" {
		t.Fatalf("expected room-a to be planned, got %s", result.Previews[0].SiteID)
	}
}

func TestPlannerService_GeneratePreview_EmptyExpansionReportsConflict(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"missing-site"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 2),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 1,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}
	if len(result.Previews) != 0 {
		t.Fatalf("expected no previews, got %d", len(result.Previews))
	}
	if len(result.Conflicts) != 1 || !strings.Contains(result.Conflicts[0], "no sites") {
		t.Fatalf("expected empty-selection conflict, got %v", result.Conflicts)
	}
}

func TestPlannerService_GeneratePreview_InvertedRangeYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a"},
		StartDate:        midnightUTC(2025, 6, 10),
		EndDate:          midnightUTC(2025, 6, 2),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 1,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}
	if len(result.Previews) != 0 || len(result.Conflicts) != 0 {
		t.Fatalf("expected empty result for inverted range, got %+v", result)
	}
}

func TestPlannerService_GeneratePreview_ValidatesParams(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	_, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 0,
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"site_ids", "auditors_per_audit", "start_date", "end_date"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected field error for %s, got %v", field, vErr.FieldErrors)
		}
	}
}

func TestPlannerService_GeneratePreview_AppliesDailyCap(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	// user-1 already has an audit on June 2; with a cap of 1 only the other
	// two remain available that day.
	f.audits.audits = []Audit{{
		ID:             "existing",
		SiteID:         "site-x",
		OnDate:         midnightUTC(2025, 6, 2),
		ParticipantIDs: []string{"user-1"},
	}}

	result, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 2),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 2,
		MaxAuditsPerDay:  1,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}
	if len(result.Previews) != 1 {
		t.Fatalf("expected 1 preview, got %d", len(result.Previews))
	}
	for _, auditor := range result.Previews[0].Auditors {
		if auditor.ID == "user-1" {
			t.Fatal("capped auditor was assigned anyway")
		}
	}
}

func TestPlannerService_CommitPreviews_CreatesAuditsAndNotifies(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	preview, err := f.planner.GeneratePreview(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a", "site-b"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 3),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 2,
	})
	if err != nil {
		t.Fatalf("GeneratePreview returned error: %v", err)
	}

	commit, err := f.planner.CommitPreviews(context.Background(), preview.Previews)
	if err != nil {
		t.Fatalf("CommitPreviews returned error: %v", err)
	}
	if commit.AuditsCreated != len(preview.Previews) {
		t.Fatalf("created %d audits, want %d", commit.AuditsCreated, len(preview.Previews))
	}
	if commit.AuditsSkipped != 0 {
		t.Fatalf("expected no skips, got %d", commit.AuditsSkipped)
	}
	if len(f.audits.audits) != len(preview.Previews) {
		t.Fatalf("stored %d audits, want %d", len(f.audits.audits), len(preview.Previews))
	}

	for i, audit := range f.audits.audits {
		if audit.Status() != AuditStatusScheduled {
			t.Fatalf("new audit has status %s, want scheduled", audit.Status())
		}
		if len(audit.Results) == 0 {
			t.Fatalf("audit %d has no check results", i)
		}
		for _, result := range audit.Results {
			if result.Passed != nil {
				t.Fatal("fresh check result already answered")
			}
		}
	}

	if len(f.notifier.batches) != 1 || len(f.notifier.batches[0]) != len(preview.Previews) {
		t.Fatalf("expected one notification batch covering all audits, got %+v", f.notifier.batches)
	}
}

func TestPlannerService_CommitPreviews_SkipsDuplicates(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	previews := []AuditPreview{{
		SiteID:   "site-a",
		SiteName: "Boiler Room",
		Date:     midnightUTC(2025, 6, 2),
		Auditors: []AuditorSummary{{ID: "user-1", Name: "Auditor user-1"}},
	}}

	if _, err := f.planner.CommitPreviews(context.Background(), previews); err != nil {
		t.Fatalf("first commit returned error: %v", err)
	}

	commit, err := f.planner.CommitPreviews(context.Background(), previews)
	if err != nil {
		t.Fatalf("second commit returned error: %v", err)
	}
	if commit.AuditsCreated != 0 || commit.AuditsSkipped != 1 {
		t.Fatalf("expected the duplicate to be skipped, got %+v", commit)
	}
	want := "audit for site Boiler Room already exists on 2025-06-02"
	if len(commit.Conflicts) != 1 || commit.Conflicts[0] != want {
		t.Fatalf("conflict = %v, want %q", commit.Conflicts, want)
	}
	if len(f.audits.audits) != 1 {
		t.Fatalf("duplicate audit was stored: %d records", len(f.audits.audits))
	}
}

func TestPlannerService_CommitPreviews_SkipsSiteWithoutChecklistItems(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	delete(f.checklists.items, "check-1")

	commit, err := f.planner.CommitPreviews(context.Background(), []AuditPreview{{
		SiteID:   "site-a",
		SiteName: "Boiler Room",
		Date:     midnightUTC(2025, 6, 2),
		Auditors: []AuditorSummary{{ID: "user-1"}},
	}})
	if err != nil {
		t.Fatalf("CommitPreviews returned error: %v", err)
	}
	if commit.AuditsCreated != 0 || commit.AuditsSkipped != 1 {
		t.Fatalf("expected skip, got %+v", commit)
	}
	if !strings.Contains(commit.Conflicts[0], "no remaining checklist items") {
		t.Fatalf("unexpected conflict: %v", commit.Conflicts)
	}
}

func TestPlannerService_ScheduleAudits_CombinesPhases(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	f.breaks.breaks = []Break{
		{ID: "break-1", UserID: "user-1", StartDate: midnightUTC(2025, 6, 2), EndDate: midnightUTC(2025, 6, 2)},
		{ID: "break-2", UserID: "user-2", StartDate: midnightUTC(2025, 6, 2), EndDate: midnightUTC(2025, 6, 2)},
	}

	result, err := f.planner.ScheduleAudits(context.Background(), PlanParams{
		SiteIDs:          []string{"site-a", "site-b"},
		StartDate:        midnightUTC(2025, 6, 2),
		EndDate:          midnightUTC(2025, 6, 3),
		Frequency:        scheduling.FrequencyDaily,
		AuditorsPerAudit: 2,
	})
	if err != nil {
		t.Fatalf("ScheduleAudits returned error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.AuditsCreated != 2 {
		t.Fatalf("created %d audits, want 2", result.AuditsCreated)
	}
	if len(result.Conflicts) != 1 || !strings.Contains(result.Conflicts[0], "insufficient auditors") {
		t.Fatalf("expected the preview shortfall to surface, got %v", result.Conflicts)
	}
}

func TestPlannerService_AvailableAuditors_ExcludesBreaksAndPoolOutsiders(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t)
	f.directory.users = append(f.directory.users, User{ID: "fixer-1", DisplayName: "Fixer", Role: RoleFixer})
	f.breaks.breaks = []Break{{ID: "break-1", UserID: "user-2", StartDate: midnightUTC(2025, 6, 2)}}

	available, err := f.planner.AvailableAuditors(context.Background(), midnightUTC(2025, 6, 2), []string{"user-1", "user-2", "fixer-1"})
	if err != nil {
		t.Fatalf("AvailableAuditors returned error: %v", err)
	}
	if len(available) != 1 || available[0].ID != "user-1" {
		t.Fatalf("expected only user-1 to remain, got %+v", available)
	}
}
