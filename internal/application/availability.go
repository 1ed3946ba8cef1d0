package application

import (
	"context"
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

// UserDirectory exposes the user lookups the scheduling core needs.
type UserDirectory interface {
	// ListSchedulableUsers returns every user whose role may be assigned
	// to audits (auditor or admin).
	ListSchedulableUsers(ctx context.Context) ([]User, error)
}

// BreakCalendar exposes unavailability lookups. Implementations return every
// break whose inclusive [start, end] window intersects the supplied bounds.
type BreakCalendar interface {
	ListBreaksOverlapping(ctx context.Context, start, end time.Time) ([]Break, error)
}

// availabilityResolver answers "who can work this date": schedulable users,
// optionally restricted to an allow-list, minus anyone with an overlapping
// break.
type availabilityResolver struct {
	users  UserDirectory
	breaks BreakCalendar
}

// available returns the auditors eligible to work the given calendar date.
// Time-of-day on date is ignored. An empty pool means no restriction.
func (r availabilityResolver) available(ctx context.Context, date time.Time, pool []string) ([]User, error) {
	if r.users == nil {
		return nil, nil
	}

	candidates, err := r.users.ListSchedulableUsers(ctx)
	if err != nil {
		return nil, err
	}

	if len(pool) > 0 {
		allowed := make(map[string]struct{}, len(pool))
		for _, id := range pool {
			allowed[id] = struct{}{}
		}
		filtered := candidates[:0:0]
		for _, candidate := range candidates {
			if _, ok := allowed[candidate.ID]; ok {
				filtered = append(filtered, candidate)
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 || r.breaks == nil {
		return candidates, nil
	}

	day := scheduling.StartOfDay(date)
	overlapping, err := r.breaks.ListBreaksOverlapping(ctx, day, day)
	if err != nil {
		return nil, err
	}

	onBreak := make(map[string]struct{}, len(overlapping))
	for _, record := range overlapping {
		if breakCovers(record, day) {
			onBreak[record.UserID] = struct{}{}
		}
	}

	eligible := make([]User, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := onBreak[candidate.ID]; ok {
			continue
		}
		eligible = append(eligible, candidate)
	}
	return eligible, nil
}

// breakCovers re-checks a break against a single day. Storage defaults a
// missing end date to the start date at creation, but a zero end is still
// treated as open-ended here rather than trusting that default.
func breakCovers(record Break, day time.Time) bool {
	start := scheduling.StartOfDay(record.StartDate)
	if day.Before(start) {
		return false
	}
	if record.EndDate.IsZero() {
		return true
	}
	return !day.After(scheduling.StartOfDay(record.EndDate))
}
