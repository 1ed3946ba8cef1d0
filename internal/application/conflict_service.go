package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

// AuditConflictStore captures the audit persistence interactions needed to
// react to newly registered breaks.
type AuditConflictStore interface {
	// ListScheduledAuditsForUserBetween returns audits in the inclusive
	// date window where the user is a participant and no start timestamp
	// is set. Started or completed audits are never returned.
	ListScheduledAuditsForUserBetween(ctx context.Context, userID string, start, end time.Time) ([]Audit, error)
	UpdateAuditParticipants(ctx context.Context, auditID string, participantIDs []string) error
}

// ConflictService reassigns or drops scheduled audits when a participant
// becomes unavailable.
type ConflictService struct {
	audits   AuditConflictStore
	resolver availabilityResolver
	logger   *slog.Logger
}

// NewConflictService wires dependencies for break conflict resolution.
func NewConflictService(audits AuditConflictStore, users UserDirectory, breaks BreakCalendar) *ConflictService {
	return NewConflictServiceWithLogger(audits, users, breaks, nil)
}

// NewConflictServiceWithLogger constructs a ConflictService with a specified logger.
func NewConflictServiceWithLogger(audits AuditConflictStore, users UserDirectory, breaks BreakCalendar, logger *slog.Logger) *ConflictService {
	return &ConflictService{
		audits:   audits,
		resolver: availabilityResolver{users: users, breaks: breaks},
		logger:   defaultLogger(logger),
	}
}

// ResolveAuditConflicts finds scheduled (never started) audits for the user
// inside the break window and substitutes the first available replacement
// per audit. When no replacement exists the user is removed anyway: the
// break takes precedence over the schedule. Audits that already started are
// excluded by the query, so re-running after a start is a no-op for them.
func (s *ConflictService) ResolveAuditConflicts(ctx context.Context, userID string, breakStart, breakEnd time.Time) (result ConflictResolution, err error) {
	if s == nil {
		return ConflictResolution{}, fmt.Errorf("ConflictService is nil")
	}
	if s.audits == nil {
		return ConflictResolution{}, fmt.Errorf("audit store not configured")
	}

	logger := s.loggerWith(ctx, "ResolveAuditConflicts", "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "conflict resolution failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "conflict resolution finished", "resolved", result.Resolved, "failed", result.Failed)
	}()

	windowStart := scheduling.StartOfDay(breakStart)
	windowEnd := windowStart
	if !breakEnd.IsZero() {
		windowEnd = scheduling.StartOfDay(breakEnd)
	}
	if windowEnd.Before(windowStart) {
		windowStart, windowEnd = windowEnd, windowStart
	}

	audits, err := s.audits.ListScheduledAuditsForUserBetween(ctx, userID, windowStart, windowEnd)
	if err != nil {
		return ConflictResolution{}, err
	}

	for _, audit := range audits {
		day := audit.OnDate.Format("2006-01-02")

		candidates, err := s.resolver.available(ctx, audit.OnDate, nil)
		if err != nil {
			return result, err
		}

		replacement, found := pickReplacement(candidates, userID, audit.ParticipantIDs)
		participants := removeID(audit.ParticipantIDs, userID)

		if found {
			participants = append(participants, replacement.ID)
		}

		if err := s.audits.UpdateAuditParticipants(ctx, audit.ID, participants); err != nil {
			result.Failed++
			result.Logs = append(result.Logs, fmt.Sprintf(
				"WARNING: failed to update audit %s at %s on %s: %v", audit.ID, audit.SiteName, day, err))
			continue
		}

		if found {
			result.Resolved++
			result.Logs = append(result.Logs, fmt.Sprintf(
				"resolved: audit %s at %s on %s reassigned from %s to %s",
				audit.ID, audit.SiteName, day, userID, replacement.ID))
			continue
		}

		result.Failed++
		result.Logs = append(result.Logs, fmt.Sprintf(
			"WARNING: no replacement found for audit %s at %s on %s; removed %s",
			audit.ID, audit.SiteName, day, userID))
	}

	return result, nil
}

func (s *ConflictService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ConflictService", operation, attrs...)
}

// pickReplacement returns the first available candidate that is neither the
// displaced user nor already participating. First-available is intentional;
// no load balancing is applied.
func pickReplacement(candidates []User, displaced string, participants []string) (User, bool) {
	taken := make(map[string]struct{}, len(participants)+1)
	taken[displaced] = struct{}{}
	for _, id := range participants {
		taken[id] = struct{}{}
	}
	for _, candidate := range candidates {
		if _, ok := taken[candidate.ID]; ok {
			continue
		}
		return candidate, true
	}
	return User{}, false
}

func removeID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == target {
			continue
		}
		out = append(out, id)
	}
	return out
}
