package persistence

import "time"

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

// User represents a person account in the audit domain.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Site is a node in the three-level facility tree. A node carries either
// child sites or checklist items, never both.
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

// Break records a date-range unavailability for a user. Both bounds are
// inclusive calendar dates; EndDate equals StartDate for a single day off.
type Break struct {
	ID        string
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckResult is one answered (or not yet answered) checklist entry inside
// an audit. Passed stays nil until the auditor records an outcome.
type CheckResult struct {
	CheckID string
	Text    string
	Passed  *bool
	Comment string
	ImageID string
}

// Audit is one inspection instance at a site on a date. Status is never
// stored; it derives from the two optional timestamps.
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

// RecurringSchedule is a named generation template advanced by the
// recurring driver. LastGeneratedDate is the watermark up to which audits
// have already been generated.
type RecurringSchedule struct {
	ID                string
	Name              string
	SiteIDs           []string
	Frequency         string
	AuditorPool       []string
	AuditorsPerAudit  int
	MaxAuditsPerDay   int
	Active            bool
	LastGeneratedDate *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}
