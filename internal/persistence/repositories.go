package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListUsersByRole(ctx context.Context, roles []Role) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SiteRepository stores facility tree nodes and their checklist references.
type SiteRepository interface {
	CreateSite(ctx context.Context, site Site) error
	UpdateSite(ctx context.Context, site Site) error
	GetSite(ctx context.Context, id string) (Site, error)
	ListSites(ctx context.Context) ([]Site, error)
	DeleteSite(ctx context.Context, id string) error
}

// ChecklistRepository stores inspection questions attached to sites.
type ChecklistRepository interface {
	CreateChecklistItem(ctx context.Context, item ChecklistItem) error
	GetChecklistItem(ctx context.Context, id string) (ChecklistItem, error)
	ListChecklistItems(ctx context.Context, ids []string) ([]ChecklistItem, error)
	DeleteChecklistItem(ctx context.Context, id string) error
}

// BreakRepository stores unavailability windows per user.
type BreakRepository interface {
	CreateBreak(ctx context.Context, record Break) error
	UpdateBreak(ctx context.Context, record Break) error
	GetBreak(ctx context.Context, id string) (Break, error)
	ListBreaksOverlapping(ctx context.Context, start, end time.Time) ([]Break, error)
	ListBreaksForUser(ctx context.Context, userID string) ([]Break, error)
	DeleteBreak(ctx context.Context, id string) error
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	ParticipantID string
	OnOrAfter     *time.Time
	OnOrBefore    *time.Time
	// ScheduledOnly limits results to audits without a start timestamp.
	ScheduledOnly bool
}

// AuditRepository stores audit instances with participants and results.
type AuditRepository interface {
	CreateAudit(ctx context.Context, audit Audit) error
	UpdateAudit(ctx context.Context, audit Audit) error
	GetAudit(ctx context.Context, id string) (Audit, error)
	ListAudits(ctx context.Context, filter AuditFilter) ([]Audit, error)
	CountAuditsForUserOnDate(ctx context.Context, userID string, date time.Time) (int, error)
	ExistsAuditForSiteOnDate(ctx context.Context, siteID string, date time.Time) (bool, error)
	DeleteAudit(ctx context.Context, id string) error
}

// RecurringScheduleRepository stores generation templates and watermarks.
type RecurringScheduleRepository interface {
	CreateRecurringSchedule(ctx context.Context, schedule RecurringSchedule) error
	UpdateRecurringSchedule(ctx context.Context, schedule RecurringSchedule) error
	GetRecurringSchedule(ctx context.Context, id string) (RecurringSchedule, error)
	ListRecurringSchedules(ctx context.Context, activeOnly bool) ([]RecurringSchedule, error)
	DeleteRecurringSchedule(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
