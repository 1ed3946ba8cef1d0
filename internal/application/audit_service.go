package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AuditRepository captures the persistence operations needed by the audit
// lifecycle service.
type AuditRepository interface {
	GetAudit(ctx context.Context, id string) (Audit, error)
	ListAudits(ctx context.Context, filter AuditListFilter) ([]Audit, error)
	UpdateAudit(ctx context.Context, audit Audit) (Audit, error)
	DeleteAudit(ctx context.Context, id string) error
}

// AuditService drives an audit through its lifecycle: scheduled, in progress,
// completed. The status is never stored; it derives from the start and
// completion timestamps.
type AuditService struct {
	audits AuditRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewAuditService wires dependencies for the audit lifecycle service.
func NewAuditService(audits AuditRepository, now func() time.Time) *AuditService {
	return NewAuditServiceWithLogger(audits, now, nil)
}

// NewAuditServiceWithLogger constructs an AuditService with a specified logger.
func NewAuditServiceWithLogger(audits AuditRepository, now func() time.Time, logger *slog.Logger) *AuditService {
	if now == nil {
		now = time.Now
	}
	return &AuditService{audits: audits, now: now, logger: defaultLogger(logger)}
}

func (s *AuditService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuditService", operation, attrs...)
}

// GetAudit returns one audit with its check results.
func (s *AuditService) GetAudit(ctx context.Context, auditID string) (Audit, error) {
	if s == nil {
		return Audit{}, fmt.Errorf("AuditService is nil")
	}
	if s.audits == nil {
		return Audit{}, fmt.Errorf("audit repository not configured")
	}
	return s.audits.GetAudit(ctx, auditID)
}

// ListAudits returns audits matching the filter. Non-administrators only see
// audits they participate in.
func (s *AuditService) ListAudits(ctx context.Context, principal Principal, filter AuditListFilter) ([]Audit, error) {
	if s == nil {
		return nil, fmt.Errorf("AuditService is nil")
	}
	if s.audits == nil {
		return nil, nil
	}
	if !principal.IsAdmin() {
		filter.ParticipantID = principal.UserID
	}
	return s.audits.ListAudits(ctx, filter)
}

// StartAudit marks a scheduled audit as started by one of its participants.
func (s *AuditService) StartAudit(ctx context.Context, principal Principal, auditID string) (Audit, error) {
	if s == nil {
		return Audit{}, fmt.Errorf("AuditService is nil")
	}
	if s.audits == nil {
		return Audit{}, fmt.Errorf("audit repository not configured")
	}

	audit, err := s.audits.GetAudit(ctx, auditID)
	if err != nil {
		return Audit{}, err
	}
	if !principal.IsAdmin() && !isParticipant(audit, principal.UserID) {
		return Audit{}, ErrUnauthorized
	}
	if audit.Status() != AuditStatusScheduled {
		vErr := &ValidationError{}
		vErr.add("audit_id", fmt.Sprintf("audit is %s and cannot be started", audit.Status()))
		return Audit{}, vErr
	}

	startedAt := s.now()
	audit.StartedAt = &startedAt
	audit.UpdatedAt = startedAt

	updated, err := s.audits.UpdateAudit(ctx, audit)
	if err != nil {
		return Audit{}, err
	}

	s.loggerWith(ctx, "StartAudit", "audit_id", auditID).InfoContext(ctx, "audit started")
	return updated, nil
}

// RecordCheckResult records the outcome of one checklist entry while the
// audit is in progress. Recording the same entry again overwrites the
// previous answer.
func (s *AuditService) RecordCheckResult(ctx context.Context, params RecordCheckResultParams) (Audit, error) {
	if s == nil {
		return Audit{}, fmt.Errorf("AuditService is nil")
	}
	if s.audits == nil {
		return Audit{}, fmt.Errorf("audit repository not configured")
	}

	audit, err := s.audits.GetAudit(ctx, params.AuditID)
	if err != nil {
		return Audit{}, err
	}
	if !params.Principal.IsAdmin() && !isParticipant(audit, params.Principal.UserID) {
		return Audit{}, ErrUnauthorized
	}
	if audit.Status() != AuditStatusInProgress {
		vErr := &ValidationError{}
		vErr.add("audit_id", fmt.Sprintf("audit is %s; results can only be recorded while in progress", audit.Status()))
		return Audit{}, vErr
	}

	found := false
	for i := range audit.Results {
		if audit.Results[i].CheckID != params.CheckID {
			continue
		}
		passed := params.Passed
		audit.Results[i].Passed = &passed
		audit.Results[i].Comment = params.Comment
		audit.Results[i].ImageID = params.ImageID
		found = true
		break
	}
	if !found {
		vErr := &ValidationError{}
		vErr.add("check_id", "check is not part of this audit")
		return Audit{}, vErr
	}

	audit.UpdatedAt = s.now()
	return s.audits.UpdateAudit(ctx, audit)
}

// CompleteAudit marks an in-progress audit as completed. Unanswered checks
// stay unanswered; completion does not require every entry to be recorded.
func (s *AuditService) CompleteAudit(ctx context.Context, principal Principal, auditID string) (Audit, error) {
	if s == nil {
		return Audit{}, fmt.Errorf("AuditService is nil")
	}
	if s.audits == nil {
		return Audit{}, fmt.Errorf("audit repository not configured")
	}

	audit, err := s.audits.GetAudit(ctx, auditID)
	if err != nil {
		return Audit{}, err
	}
	if !principal.IsAdmin() && !isParticipant(audit, principal.UserID) {
		return Audit{}, ErrUnauthorized
	}
	if audit.Status() != AuditStatusInProgress {
		vErr := &ValidationError{}
		vErr.add("audit_id", fmt.Sprintf("audit is %s and cannot be completed", audit.Status()))
		return Audit{}, vErr
	}

	completedAt := s.now()
	audit.CompletedAt = &completedAt
	audit.UpdatedAt = completedAt

	updated, err := s.audits.UpdateAudit(ctx, audit)
	if err != nil {
		return Audit{}, err
	}

	s.loggerWith(ctx, "CompleteAudit", "audit_id", auditID,
		"unanswered", countUnanswered(updated)).InfoContext(ctx, "audit completed")
	return updated, nil
}

// DeleteAudit removes an audit for administrators. Started or completed
// audits are kept as history and cannot be deleted.
func (s *AuditService) DeleteAudit(ctx context.Context, principal Principal, auditID string) error {
	if s == nil {
		return fmt.Errorf("AuditService is nil")
	}
	if !principal.IsAdmin() {
		return ErrUnauthorized
	}
	if s.audits == nil {
		return fmt.Errorf("audit repository not configured")
	}

	audit, err := s.audits.GetAudit(ctx, auditID)
	if err != nil {
		return err
	}
	if audit.Status() != AuditStatusScheduled {
		vErr := &ValidationError{}
		vErr.add("audit_id", fmt.Sprintf("audit is %s and cannot be deleted", audit.Status()))
		return vErr
	}

	if err := s.audits.DeleteAudit(ctx, auditID); err != nil {
		return err
	}
	s.loggerWith(ctx, "DeleteAudit", "audit_id", auditID).InfoContext(ctx, "audit deleted")
	return nil
}

func isParticipant(audit Audit, userID string) bool {
	for _, id := range audit.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func countUnanswered(audit Audit) int {
	unanswered := 0
	for _, result := range audit.Results {
		if result.Passed == nil {
			unanswered++
		}
	}
	return unanswered
}
