package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type breakRepoStub struct {
	records map[string]Break
}

func newBreakRepoStub(records ...Break) *breakRepoStub {
	stub := &breakRepoStub{records: make(map[string]Break)}
	for _, record := range records {
		stub.records[record.ID] = record
	}
	return stub
}

func (s *breakRepoStub) CreateBreak(ctx context.Context, record Break) (Break, error) {
	s.records[record.ID] = record
	return record, nil
}

func (s *breakRepoStub) GetBreak(ctx context.Context, id string) (Break, error) {
	record, ok := s.records[id]
	if !ok {
		return Break{}, ErrNotFound
	}
	return record, nil
}

func (s *breakRepoStub) UpdateBreak(ctx context.Context, record Break) (Break, error) {
	if _, ok := s.records[record.ID]; !ok {
		return Break{}, ErrNotFound
	}
	s.records[record.ID] = record
	return record, nil
}

func (s *breakRepoStub) DeleteBreak(ctx context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *breakRepoStub) ListBreaksForUser(ctx context.Context, userID string) ([]Break, error) {
	out := make([]Break, 0)
	for _, record := range s.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

type resolverStub struct {
	calls      int
	userID     string
	start, end time.Time
	result     ConflictResolution
	err        error
}

func (s *resolverStub) ResolveAuditConflicts(ctx context.Context, userID string, breakStart, breakEnd time.Time) (ConflictResolution, error) {
	s.calls++
	s.userID = userID
	s.start = breakStart
	s.end = breakEnd
	if s.err != nil {
		return ConflictResolution{}, s.err
	}
	return s.result, nil
}

func newBreakService(repo *breakRepoStub, resolver *resolverStub) *BreakService {
	sequence := 0
	return NewBreakService(repo, resolver,
		func() string { sequence++; return fmt.Sprintf("break-%d", sequence) },
		func() time.Time { return midnightUTC(2025, 6, 1) })
}

func TestBreakService_CreateBreak_TriggersConflictResolution(t *testing.T) {
	t.Parallel()

	repo := newBreakRepoStub()
	resolver := &resolverStub{result: ConflictResolution{Resolved: 2}}
	svc := newBreakService(repo, resolver)

	record, resolution, err := svc.CreateBreak(context.Background(), CreateBreakParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		Input: BreakInput{
			StartDate: midnightUTC(2025, 6, 2).Add(13 * time.Hour),
			EndDate:   midnightUTC(2025, 6, 4),
		},
	})
	if err != nil {
		t.Fatalf("CreateBreak returned error: %v", err)
	}

	if record.UserID != "user-1" {
		t.Fatalf("break owner = %s, want the acting user", record.UserID)
	}
	if !record.StartDate.Equal(midnightUTC(2025, 6, 2)) {
		t.Fatalf("start not normalized to midnight: %s", record.StartDate)
	}
	if resolver.calls != 1 || resolver.userID != "user-1" {
		t.Fatalf("conflict resolution not triggered: %+v", resolver)
	}
	if !resolver.start.Equal(record.StartDate) || !resolver.end.Equal(record.EndDate) {
		t.Fatalf("resolver window mismatch: %s..%s", resolver.start, resolver.end)
	}
	if resolution.Resolved != 2 {
		t.Fatalf("resolution not propagated: %+v", resolution)
	}
}

func TestBreakService_CreateBreak_DefaultsEndDateToStart(t *testing.T) {
	t.Parallel()

	svc := newBreakService(newBreakRepoStub(), &resolverStub{})
	record, _, err := svc.CreateBreak(context.Background(), CreateBreakParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		Input:     BreakInput{StartDate: midnightUTC(2025, 6, 2)},
	})
	if err != nil {
		t.Fatalf("CreateBreak returned error: %v", err)
	}
	if !record.EndDate.Equal(record.StartDate) {
		t.Fatalf("end date = %s, want the start date", record.EndDate)
	}
}

func TestBreakService_CreateBreak_RejectsOthersBreakForNonAdmin(t *testing.T) {
	t.Parallel()

	svc := newBreakService(newBreakRepoStub(), &resolverStub{})
	_, _, err := svc.CreateBreak(context.Background(), CreateBreakParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		Input:     BreakInput{UserID: "user-2", StartDate: midnightUTC(2025, 6, 2)},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["user_id"]; !ok {
		t.Fatalf("expected user_id error, got %v", vErr.FieldErrors)
	}
}

func TestBreakService_CreateBreak_AdminMayRegisterForOthers(t *testing.T) {
	t.Parallel()

	resolver := &resolverStub{}
	svc := newBreakService(newBreakRepoStub(), resolver)
	record, _, err := svc.CreateBreak(context.Background(), CreateBreakParams{
		Principal: adminPrincipal(),
		Input:     BreakInput{UserID: "user-2", StartDate: midnightUTC(2025, 6, 2)},
	})
	if err != nil {
		t.Fatalf("CreateBreak returned error: %v", err)
	}
	if record.UserID != "user-2" || resolver.userID != "user-2" {
		t.Fatalf("break not registered for target user: %+v", record)
	}
}

func TestBreakService_CreateBreak_RejectsInvertedRange(t *testing.T) {
	t.Parallel()

	svc := newBreakService(newBreakRepoStub(), &resolverStub{})
	_, _, err := svc.CreateBreak(context.Background(), CreateBreakParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		Input: BreakInput{
			StartDate: midnightUTC(2025, 6, 4),
			EndDate:   midnightUTC(2025, 6, 2),
		},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBreakService_UpdateBreak_ReRunsResolutionForNewWindow(t *testing.T) {
	t.Parallel()

	repo := newBreakRepoStub(Break{ID: "break-1", UserID: "user-1", StartDate: midnightUTC(2025, 6, 2), EndDate: midnightUTC(2025, 6, 2)})
	resolver := &resolverStub{}
	svc := newBreakService(repo, resolver)

	record, _, err := svc.UpdateBreak(context.Background(), UpdateBreakParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		BreakID:   "break-1",
		Input: BreakInput{
			StartDate: midnightUTC(2025, 6, 10),
			EndDate:   midnightUTC(2025, 6, 12),
		},
	})
	if err != nil {
		t.Fatalf("UpdateBreak returned error: %v", err)
	}
	if !record.StartDate.Equal(midnightUTC(2025, 6, 10)) {
		t.Fatalf("window not moved: %s", record.StartDate)
	}
	if resolver.calls != 1 || !resolver.start.Equal(midnightUTC(2025, 6, 10)) {
		t.Fatalf("resolution not run for new window: %+v", resolver)
	}
}

func TestBreakService_UpdateBreak_RejectsForeignBreak(t *testing.T) {
	t.Parallel()

	repo := newBreakRepoStub(Break{ID: "break-1", UserID: "user-2", StartDate: midnightUTC(2025, 6, 2)})
	svc := newBreakService(repo, &resolverStub{})

	_, _, err := svc.UpdateBreak(context.Background(), UpdateBreakParams{
		Principal: Principal{UserID: "user-1", Role: RoleAuditor},
		BreakID:   "break-1",
		Input:     BreakInput{StartDate: midnightUTC(2025, 6, 3)},
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBreakService_DeleteBreak_DoesNotTriggerResolution(t *testing.T) {
	t.Parallel()

	repo := newBreakRepoStub(Break{ID: "break-1", UserID: "user-1", StartDate: midnightUTC(2025, 6, 2)})
	resolver := &resolverStub{}
	svc := newBreakService(repo, resolver)

	if err := svc.DeleteBreak(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "break-1"); err != nil {
		t.Fatalf("DeleteBreak returned error: %v", err)
	}
	if resolver.calls != 0 {
		t.Fatal("deleting a break must not reassign audits")
	}
}

func TestBreakService_ListBreaks_ScopesToOwnUser(t *testing.T) {
	t.Parallel()

	repo := newBreakRepoStub(
		Break{ID: "break-1", UserID: "user-1"},
		Break{ID: "break-2", UserID: "user-2"},
	)
	svc := newBreakService(repo, &resolverStub{})

	if _, err := svc.ListBreaks(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "user-2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	own, err := svc.ListBreaks(context.Background(), Principal{UserID: "user-1", Role: RoleAuditor}, "")
	if err != nil {
		t.Fatalf("ListBreaks returned error: %v", err)
	}
	if len(own) != 1 || own[0].ID != "break-1" {
		t.Fatalf("unexpected listing: %+v", own)
	}
}
