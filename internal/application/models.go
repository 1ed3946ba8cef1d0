package application

import (
	"time"

	"github.com/example/facility-audit/internal/scheduling"
)

// Role identifies what a user may do inside the audit system.
type Role string

const (
	// RoleAuditor executes scheduled audits.
	RoleAuditor Role = "auditor"
	// RoleFixer remediates failed checks and is never scheduled.
	RoleFixer Role = "fixer"
	// RoleAdmin administers the system and may also be scheduled.
	RoleAdmin Role = "admin"
)

// Schedulable reports whether a role may be assigned to audits.
func (r Role) Schedulable() bool {
	return r == RoleAuditor || r == RoleAdmin
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAuditor || r == RoleFixer || r == RoleAdmin
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal may perform administrative operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// User represents a person account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserInput captures caller provided user attributes.
type UserInput struct {
	Email       string
	DisplayName string
	Role        Role
	Password    string
}

// Site is a node in the three-level facility tree.
type Site struct {
	ID        string
	Name      string
	Level     int
	ParentID  *string
	ChildIDs  []string
	CheckIDs  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SiteInput captures caller provided site fields.
type SiteInput struct {
	Name     string
	ParentID *string
}

// ChecklistItem is a reusable inspection question attached to one site.
type ChecklistItem struct {
	ID          string
	SiteID      string
	Text        string
	Description string
	ImageIDs    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChecklistItemInput captures caller provided checklist fields.
type ChecklistItemInput struct {
	Text        string
	Description string
	ImageIDs    []string
}

// Break records a date-range unavailability for a user, bounds inclusive.
type Break struct {
	ID        string
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BreakInput captures caller provided break fields. A zero EndDate means a
// single day off starting and ending on StartDate.
type BreakInput struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
}

// AuditStatus is the derived lifecycle state of an audit.
type AuditStatus string

const (
	// AuditStatusScheduled means the audit has not been started.
	AuditStatusScheduled AuditStatus = "scheduled"
	// AuditStatusInProgress means the audit was started but not completed.
	AuditStatusInProgress AuditStatus = "in_progress"
	// AuditStatusCompleted means the audit was started and completed.
	AuditStatusCompleted AuditStatus = "completed"
)

// CheckResult is one checklist entry inside an audit. Passed stays nil until
// the auditor records an outcome.
type CheckResult struct {
	CheckID string
	Text    string
	Passed  *bool
	Comment string
	ImageID string
}

// Audit is one inspection instance at a site on a date.
type Audit struct {
	ID             string
	SiteID         string
	SiteName       string
	ParticipantIDs []string
	OnDate         time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Results        []CheckResult
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Status derives the lifecycle state from the two optional timestamps so the
// value can never desynchronize from its source fields.
func (a Audit) Status() AuditStatus {
	switch {
	case a.StartedAt == nil:
		return AuditStatusScheduled
	case a.CompletedAt == nil:
		return AuditStatusInProgress
	default:
		return AuditStatusCompleted
	}
}

// RecurringSchedule is a named generation template advanced by the recurring
// driver.
type RecurringSchedule struct {
	ID                string
	Name              string
	SiteIDs           []string
	Frequency         scheduling.Frequency
	AuditorPool       []string
	AuditorsPerAudit  int
	MaxAuditsPerDay   int
	Active            bool
	LastGeneratedDate *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecurringScheduleInput captures caller provided template fields.
type RecurringScheduleInput struct {
	Name             string
	SiteIDs          []string
	Frequency        scheduling.Frequency
	AuditorPool      []string
	AuditorsPerAudit int
	MaxAuditsPerDay  int
	Active           bool
}

// AuditorSummary is the assignment view of an auditor inside a preview.
type AuditorSummary struct {
	ID   string
	Name string
}

// AuditPreview is a transient planned assignment: one audit at one site on
// one date with its assigned auditors. Produced by preview generation and
// consumed by the commit engine or discarded.
type AuditPreview struct {
	SiteID   string
	SiteName string
	Date     time.Time
	Auditors []AuditorSummary
}

// PlanParams configures preview generation for a one-shot or recurring run.
type PlanParams struct {
	SiteIDs          []string
	StartDate        time.Time
	EndDate          time.Time
	Frequency        scheduling.Frequency
	AuditorPool      []string
	AuditorsPerAudit int
	MaxAuditsPerDay  int
}

// PreviewResult carries planned assignments and human readable shortfalls.
type PreviewResult struct {
	Previews  []AuditPreview
	Conflicts []string
}

// CreatedAuditSummary describes one audit created by the commit engine,
// shaped for downstream notification.
type CreatedAuditSummary struct {
	AuditID        string
	SiteID         string
	SiteName       string
	Date           time.Time
	ParticipantIDs []string
	CheckCount     int
}

// CommitResult aggregates the outcome of committing a preview batch.
type CommitResult struct {
	AuditsCreated int
	AuditsSkipped int
	Conflicts     []string
	CreatedAudits []CreatedAuditSummary
}

// ScheduleResult is the combined outcome of the one-shot schedule operation.
type ScheduleResult struct {
	Success       bool
	AuditsCreated int
	AuditsSkipped int
	Conflicts     []string
}

// NotificationReport summarizes a best-effort notification batch.
type NotificationReport struct {
	TotalSent   int
	TotalFailed int
}

// RecurringRunResult reports one invocation of the recurring driver.
type RecurringRunResult struct {
	RunID         string
	RanAt         time.Time
	Processed     int
	AuditsCreated int
	Conflicts     []string
	Errors        []string
}

// ConflictResolution reports the outcome of reacting to a registered break.
type ConflictResolution struct {
	Resolved int
	Failed   int
	Logs     []string
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult captures the outcome of a successful authentication.
type AuthenticateResult struct {
	User    User
	Session Session
}

// CreateUserParams wraps the data required to create a user.
type CreateUserParams struct {
	Principal Principal
	Input     UserInput
}

// UpdateUserParams wraps the data required to update an existing user.
type UpdateUserParams struct {
	Principal Principal
	UserID    string
	Input     UserInput
}

// CreateSiteParams wraps the data required to create a site node.
type CreateSiteParams struct {
	Principal Principal
	Input     SiteInput
}

// UpdateSiteParams wraps the data required to rename a site node.
type UpdateSiteParams struct {
	Principal Principal
	SiteID    string
	Input     SiteInput
}

// AddChecklistItemParams wraps the data required to attach a checklist item
// to a leaf site.
type AddChecklistItemParams struct {
	Principal Principal
	SiteID    string
	Input     ChecklistItemInput
}

// CreateBreakParams wraps the data required to register a break.
type CreateBreakParams struct {
	Principal Principal
	Input     BreakInput
}

// UpdateBreakParams wraps the data required to move an existing break.
type UpdateBreakParams struct {
	Principal Principal
	BreakID   string
	Input     BreakInput
}

// RecordCheckResultParams wraps the data required to answer one checklist
// entry during an audit.
type RecordCheckResultParams struct {
	Principal Principal
	AuditID   string
	CheckID   string
	Passed    bool
	Comment   string
	ImageID   string
}

// AuditListFilter narrows audit listings.
type AuditListFilter struct {
	ParticipantID string
	From          *time.Time
	To            *time.Time
	ScheduledOnly bool
}

// CreateRecurringScheduleParams wraps the data required to create a template.
type CreateRecurringScheduleParams struct {
	Principal Principal
	Input     RecurringScheduleInput
}
