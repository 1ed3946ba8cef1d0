package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

type auditRepoStub struct {
	audits map[string]Audit
}

func newAuditRepoStub(audits ...Audit) *auditRepoStub {
	stub := &auditRepoStub{audits: make(map[string]Audit)}
	for _, audit := range audits {
		stub.audits[audit.ID] = audit
	}
	return stub
}

func (s *auditRepoStub) GetAudit(ctx context.Context, id string) (Audit, error) {
	audit, ok := s.audits[id]
	if !ok {
		return Audit{}, ErrNotFound
	}
	return audit, nil
}

func (s *auditRepoStub) ListAudits(ctx context.Context, filter AuditListFilter) ([]Audit, error) {
	out := make([]Audit, 0)
	for _, audit := range s.audits {
		if filter.ParticipantID != "" && !isParticipant(audit, filter.ParticipantID) {
			continue
		}
		if filter.ScheduledOnly && audit.Status() != AuditStatusScheduled {
			continue
		}
		out = append(out, audit)
	}
	return out, nil
}

func (s *auditRepoStub) UpdateAudit(ctx context.Context, audit Audit) (Audit, error) {
	if _, ok := s.audits[audit.ID]; !ok {
		return Audit{}, ErrNotFound
	}
	s.audits[audit.ID] = audit
	return audit, nil
}

func (s *auditRepoStub) DeleteAudit(ctx context.Context, id string) error {
	if _, ok := s.audits[id]; !ok {
		return ErrNotFound
	}
	delete(s.audits, id)
	return nil
}

func scheduledAudit(id string, participants ...string) Audit {
	return Audit{
		ID:             id,
		SiteID:         "site-a",
		SiteName:       "Boiler Room",
		OnDate:         midnightUTC(2025, 6, 2),
		ParticipantIDs: participants,
		Results: []CheckResult{
			{CheckID: "check-1", Text: "Pressure gauge in range"},
			{CheckID: "check-2", Text: "No visible leaks"},
		},
	}
}

func TestAuditService_StartAudit_SetsStartedAt(t *testing.T) {
	t.Parallel()

	repo := newAuditRepoStub(scheduledAudit("audit-1", "user-1"))
	now := midnightUTC(2025, 6, 2).Add(9 * time.Hour)
	svc := NewAuditService(repo, func() time.Time { return now })

	audit, err := svc.StartAudit(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "audit-1")
	if err != nil {
		t.Fatalf("StartAudit returned error: %v", err)
	}
	if audit.Status() != AuditStatusInProgress {
		t.Fatalf("status = %s, want in_progress", audit.Status())
	}
	if audit.StartedAt == nil || !audit.StartedAt.Equal(now) {
		t.Fatalf("started at = %v, want %s", audit.StartedAt, now)
	}
}

func TestAuditService_StartAudit_RejectsNonParticipant(t *testing.T) {
	t.Parallel()

	repo := newAuditRepoStub(scheduledAudit("audit-1", "user-1"))
	svc := NewAuditService(repo, nil)

	_, err := svc.StartAudit(context.Background(), Principal{UserID: "user-2", Role: RoleAuditor}, "audit-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuditService_StartAudit_RejectsDoubleStart(t *testing.T) {
	t.Parallel()

	audit := scheduledAudit("audit-1", "user-1")
	startedAt := midnightUTC(2025, 6, 2)
	audit.StartedAt = &startedAt
	repo := newAuditRepoStub(audit)
	svc := NewAuditService(repo, nil)

	_, err := svc.StartAudit(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "audit-1")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAuditService_RecordCheckResult_OverwritesAnswer(t *testing.T) {
	t.Parallel()

	audit := scheduledAudit("audit-1", "user-1")
	startedAt := midnightUTC(2025, 6, 2)
	audit.StartedAt = &startedAt
	repo := newAuditRepoStub(audit)
	svc := NewAuditService(repo, func() time.Time { return startedAt.Add(time.Hour) })

	principal := Principal{UserID: "user-1", Role: RoleAuditor}
	if _, err := svc.RecordCheckResult(context.Background(), RecordCheckResultParams{
		Principal: principal, AuditID: "audit-1", CheckID: "check-1", Passed: false, Comment: "gauge stuck",
	}); err != nil {
		t.Fatalf("first record returned error: %v", err)
	}

	updated, err := svc.RecordCheckResult(context.Background(), RecordCheckResultParams{
		Principal: principal, AuditID: "audit-1", CheckID: "check-1", Passed: true,
	})
	if err != nil {
		t.Fatalf("second record returned error: %v", err)
	}

	var result *CheckResult
	for i := range updated.Results {
		if updated.Results[i].CheckID == "check-1" {
			result = &updated.Results[i]
		}
	}
	if result == nil || result.Passed == nil || !*result.Passed {
		t.Fatalf("answer not overwritten: %+v", result)
	}
	if updated.Results[1].Passed != nil {
		t.Fatal("untouched check gained an answer")
	}
}

func TestAuditService_RecordCheckResult_RequiresInProgress(t *testing.T) {
	t.Parallel()

	repo := newAuditRepoStub(scheduledAudit("audit-1", "user-1"))
	svc := NewAuditService(repo, nil)

	_, err := svc.RecordCheckResult(context.Background(), RecordCheckResultParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		AuditID:   "audit-1", CheckID: "check-1", Passed: true,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAuditService_RecordCheckResult_UnknownCheck(t *testing.T) {
	t.Parallel()

	audit := scheduledAudit("audit-1", "user-1")
	startedAt := midnightUTC(2025, 6, 2)
	audit.StartedAt = &startedAt
	repo := newAuditRepoStub(audit)
	svc := NewAuditService(repo, nil)

	_, err := svc.RecordCheckResult(context.Background(), RecordCheckResultParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		AuditID:   "audit-1", CheckID: "check-999", Passed: true,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["check_id"]; !ok {
		t.Fatalf("expected check_id error, got %v", vErr.FieldErrors)
	}
}

func TestAuditService_CompleteAudit_AllowsUnansweredChecks(t *testing.T) {
	t.Parallel()

	audit := scheduledAudit("audit-1", "user-1")
	startedAt := midnightUTC(2025, 6, 2)
	audit.StartedAt = &startedAt
	repo := newAuditRepoStub(audit)
	svc := NewAuditService(repo, func() time.Time { return startedAt.Add(2 * time.Hour) })

	completed, err := svc.CompleteAudit(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "audit-1")
	if err != nil {
		t.Fatalf("CompleteAudit returned error: %v", err)
	}
	if completed.Status() != AuditStatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status())
	}
	if countUnanswered(completed) != 2 {
		t.Fatalf("unanswered = %d, want 2", countUnanswered(completed))
	}
}

func TestAuditService_CompleteAudit_RequiresStart(t *testing.T) {
	t.Parallel()

	repo := newAuditRepoStub(scheduledAudit("audit-1", "user-1"))
	svc := NewAuditService(repo, nil)

	_, err := svc.CompleteAudit(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "audit-1")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAuditService_DeleteAudit_OnlyScheduledAndOnlyAdmin(t *testing.T) {
	t.Parallel()

	started := scheduledAudit("audit-2", "user-1")
	startedAt := midnightUTC(2025, 6, 2)
	started.StartedAt = &startedAt
	repo := newAuditRepoStub(scheduledAudit("audit-1", "user-1"), started)
	svc := NewAuditService(repo, nil)

	if err := svc.DeleteAudit(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "audit-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
	}

	var vErr *ValidationError
	if err := svc.DeleteAudit(context.Background(), adminPrincipal(), "audit-2"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for started audit, got %v", err)
	}

	if err := svc.DeleteAudit(context.Background(), adminPrincipal(), "audit-1"); err != nil {
		t.Fatalf("DeleteAudit returned error: %v", err)
	}
	if _, ok := repo.audits["audit-1"]; ok {
		t.Fatal("scheduled audit was not deleted")
	}
}

func TestAuditService_ListAudits_ScopesNonAdminsToOwnAudits(t *testing.T) {
	t.Parallel()

	repo := newAuditRepoStub(
		scheduledAudit("audit-1", "user-1"),
		scheduledAudit("audit-2", "user-2"),
	)
	svc := NewAuditService(repo, nil)

	audits, err := svc.ListAudits(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, AuditListFilter{})
	if err != nil {
		t.Fatalf("ListAudits returned error: %v", err)
	}
	if len(audits) != 1 || audits[0].ID != "audit-1" {
		t.Fatalf("unexpected listing: %+v", audits)
	}
}
