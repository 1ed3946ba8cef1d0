package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/example/facility-audit/internal/application"
	"github.com/example/facility-audit/internal/scheduling"
)

// The store types in this file adapt the persistence repositories onto the
// ports the application services consume: they convert between the two model
// sets and translate persistence sentinels into application errors.

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return application.ErrNotFound
	case errors.Is(err, ErrDuplicate):
		return application.ErrAlreadyExists
	default:
		return err
	}
}

// UserStore adapts UserRepository onto the application's user, credential,
// and directory ports.
type UserStore struct {
	users UserRepository
}

// NewUserStore creates a user store backed by the given repository.
func NewUserStore(users UserRepository) *UserStore {
	return &UserStore{users: users}
}

// CreateUser persists a new user together with its password hash.
func (s *UserStore) CreateUser(ctx context.Context, user application.User, passwordHash string) (application.User, error) {
	record := toPersistenceUser(user)
	record.PasswordHash = passwordHash
	if err := s.users.CreateUser(ctx, record); err != nil {
		return application.User{}, mapStoreError(err)
	}
	stored, err := s.users.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, mapStoreError(err)
	}
	return toApplicationUser(stored), nil
}

// GetUser retrieves a user by ID.
func (s *UserStore) GetUser(ctx context.Context, id string) (application.User, error) {
	record, err := s.users.GetUser(ctx, id)
	if err != nil {
		return application.User{}, mapStoreError(err)
	}
	return toApplicationUser(record), nil
}

// UpdateUser rewrites a user's profile fields, preserving the stored
// password hash.
func (s *UserStore) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	existing, err := s.users.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, mapStoreError(err)
	}

	record := toPersistenceUser(user)
	record.PasswordHash = existing.PasswordHash
	record.CreatedAt = existing.CreatedAt
	if err := s.users.UpdateUser(ctx, record); err != nil {
		return application.User{}, mapStoreError(err)
	}

	stored, err := s.users.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, mapStoreError(err)
	}
	return toApplicationUser(stored), nil
}

// DeleteUser removes a user by ID.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	return mapStoreError(s.users.DeleteUser(ctx, id))
}

// ListUsers returns every user.
func (s *UserStore) ListUsers(ctx context.Context) ([]application.User, error) {
	records, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	users := make([]application.User, 0, len(records))
	for _, record := range records {
		users = append(users, toApplicationUser(record))
	}
	return users, nil
}

// ListSchedulableUsers returns every user whose role may carry audit
// assignments.
func (s *UserStore) ListSchedulableUsers(ctx context.Context) ([]application.User, error) {
	records, err := s.users.ListUsersByRole(ctx, []Role{RoleAuditor, RoleAdmin})
	if err != nil {
		return nil, mapStoreError(err)
	}
	users := make([]application.User, 0, len(records))
	for _, record := range records {
		users = append(users, toApplicationUser(record))
	}
	return users, nil
}

// GetUserCredentialsByEmail returns the user and stored hash for a login
// attempt.
func (s *UserStore) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	record, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, mapStoreError(err)
	}
	return application.UserCredentials{
		User:         toApplicationUser(record),
		PasswordHash: record.PasswordHash,
	}, nil
}

// SiteStore adapts SiteRepository onto the application's site ports.
type SiteStore struct {
	sites SiteRepository
}

// NewSiteStore creates a site store backed by the given repository.
func NewSiteStore(sites SiteRepository) *SiteStore {
	return &SiteStore{sites: sites}
}

// CreateSite persists a new facility tree node.
func (s *SiteStore) CreateSite(ctx context.Context, site application.Site) (application.Site, error) {
	if err := s.sites.CreateSite(ctx, toPersistenceSite(site)); err != nil {
		return application.Site{}, mapStoreError(err)
	}
	return s.GetSite(ctx, site.ID)
}

// GetSite retrieves a site by ID.
func (s *SiteStore) GetSite(ctx context.Context, id string) (application.Site, error) {
	record, err := s.sites.GetSite(ctx, id)
	if err != nil {
		return application.Site{}, mapStoreError(err)
	}
	return toApplicationSite(record), nil
}

// UpdateSite rewrites a site's name and check references.
func (s *SiteStore) UpdateSite(ctx context.Context, site application.Site) (application.Site, error) {
	if err := s.sites.UpdateSite(ctx, toPersistenceSite(site)); err != nil {
		return application.Site{}, mapStoreError(err)
	}
	return s.GetSite(ctx, site.ID)
}

// DeleteSite removes a site by ID.
func (s *SiteStore) DeleteSite(ctx context.Context, id string) error {
	return mapStoreError(s.sites.DeleteSite(ctx, id))
}

// ListSites returns the whole tree as a flat list.
func (s *SiteStore) ListSites(ctx context.Context) ([]application.Site, error) {
	records, err := s.sites.ListSites(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	sites := make([]application.Site, 0, len(records))
	for _, record := range records {
		sites = append(sites, toApplicationSite(record))
	}
	return sites, nil
}

// ChecklistStore adapts ChecklistRepository onto the application's checklist
// ports. Per-site listings follow the ordering recorded on the site.
type ChecklistStore struct {
	checks ChecklistRepository
	sites  SiteRepository
}

// NewChecklistStore creates a checklist store backed by the given repositories.
func NewChecklistStore(checks ChecklistRepository, sites SiteRepository) *ChecklistStore {
	return &ChecklistStore{checks: checks, sites: sites}
}

// CreateChecklistItem persists a new inspection question.
func (s *ChecklistStore) CreateChecklistItem(ctx context.Context, item application.ChecklistItem) (application.ChecklistItem, error) {
	if err := s.checks.CreateChecklistItem(ctx, toPersistenceChecklistItem(item)); err != nil {
		return application.ChecklistItem{}, mapStoreError(err)
	}
	return s.GetChecklistItem(ctx, item.ID)
}

// GetChecklistItem retrieves a checklist item by ID.
func (s *ChecklistStore) GetChecklistItem(ctx context.Context, id string) (application.ChecklistItem, error) {
	record, err := s.checks.GetChecklistItem(ctx, id)
	if err != nil {
		return application.ChecklistItem{}, mapStoreError(err)
	}
	return toApplicationChecklistItem(record), nil
}

// DeleteChecklistItem removes a checklist item by ID.
func (s *ChecklistStore) DeleteChecklistItem(ctx context.Context, id string) error {
	return mapStoreError(s.checks.DeleteChecklistItem(ctx, id))
}

// ListChecklistItemsForSite returns the site's items in the order the site
// references them.
func (s *ChecklistStore) ListChecklistItemsForSite(ctx context.Context, siteID string) ([]application.ChecklistItem, error) {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return s.ResolveChecklistItems(ctx, site.CheckIDs)
}

// ResolveChecklistItems returns the items matching the given IDs, dropping
// references to deleted items.
func (s *ChecklistStore) ResolveChecklistItems(ctx context.Context, ids []string) ([]application.ChecklistItem, error) {
	records, err := s.checks.ListChecklistItems(ctx, ids)
	if err != nil {
		return nil, mapStoreError(err)
	}
	items := make([]application.ChecklistItem, 0, len(records))
	for _, record := range records {
		items = append(items, toApplicationChecklistItem(record))
	}
	return items, nil
}

// BreakStore adapts BreakRepository onto the application's break ports.
type BreakStore struct {
	breaks BreakRepository
}

// NewBreakStore creates a break store backed by the given repository.
func NewBreakStore(breaks BreakRepository) *BreakStore {
	return &BreakStore{breaks: breaks}
}

// CreateBreak persists a new unavailability window.
func (s *BreakStore) CreateBreak(ctx context.Context, record application.Break) (application.Break, error) {
	if err := s.breaks.CreateBreak(ctx, toPersistenceBreak(record)); err != nil {
		return application.Break{}, mapStoreError(err)
	}
	return s.GetBreak(ctx, record.ID)
}

// GetBreak retrieves a break by ID.
func (s *BreakStore) GetBreak(ctx context.Context, id string) (application.Break, error) {
	stored, err := s.breaks.GetBreak(ctx, id)
	if err != nil {
		return application.Break{}, mapStoreError(err)
	}
	return toApplicationBreak(stored), nil
}

// UpdateBreak rewrites an existing break window.
func (s *BreakStore) UpdateBreak(ctx context.Context, record application.Break) (application.Break, error) {
	if err := s.breaks.UpdateBreak(ctx, toPersistenceBreak(record)); err != nil {
		return application.Break{}, mapStoreError(err)
	}
	return s.GetBreak(ctx, record.ID)
}

// DeleteBreak removes a break by ID.
func (s *BreakStore) DeleteBreak(ctx context.Context, id string) error {
	return mapStoreError(s.breaks.DeleteBreak(ctx, id))
}

// ListBreaksForUser returns one user's breaks.
func (s *BreakStore) ListBreaksForUser(ctx context.Context, userID string) ([]application.Break, error) {
	records, err := s.breaks.ListBreaksForUser(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return toApplicationBreaks(records), nil
}

// ListBreaksOverlapping returns every break intersecting the inclusive
// window.
func (s *BreakStore) ListBreaksOverlapping(ctx context.Context, start, end time.Time) ([]application.Break, error) {
	records, err := s.breaks.ListBreaksOverlapping(ctx, start, end)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return toApplicationBreaks(records), nil
}

// AuditStore adapts AuditRepository onto the application's audit, planning,
// and conflict ports.
type AuditStore struct {
	audits AuditRepository
}

// NewAuditStore creates an audit store backed by the given repository.
func NewAuditStore(audits AuditRepository) *AuditStore {
	return &AuditStore{audits: audits}
}

// CreateAudit persists a newly planned audit.
func (s *AuditStore) CreateAudit(ctx context.Context, audit application.Audit) (application.Audit, error) {
	if err := s.audits.CreateAudit(ctx, toPersistenceAudit(audit)); err != nil {
		return application.Audit{}, mapStoreError(err)
	}
	return s.GetAudit(ctx, audit.ID)
}

// GetAudit retrieves an audit by ID.
func (s *AuditStore) GetAudit(ctx context.Context, id string) (application.Audit, error) {
	record, err := s.audits.GetAudit(ctx, id)
	if err != nil {
		return application.Audit{}, mapStoreError(err)
	}
	return toApplicationAudit(record), nil
}

// UpdateAudit rewrites an audit's lifecycle fields, participants, and results.
func (s *AuditStore) UpdateAudit(ctx context.Context, audit application.Audit) (application.Audit, error) {
	if err := s.audits.UpdateAudit(ctx, toPersistenceAudit(audit)); err != nil {
		return application.Audit{}, mapStoreError(err)
	}
	return s.GetAudit(ctx, audit.ID)
}

// DeleteAudit removes an audit by ID.
func (s *AuditStore) DeleteAudit(ctx context.Context, id string) error {
	return mapStoreError(s.audits.DeleteAudit(ctx, id))
}

// ListAudits returns audits matching the application filter.
func (s *AuditStore) ListAudits(ctx context.Context, filter application.AuditListFilter) ([]application.Audit, error) {
	records, err := s.audits.ListAudits(ctx, AuditFilter{
		ParticipantID: filter.ParticipantID,
		OnOrAfter:     filter.From,
		OnOrBefore:    filter.To,
		ScheduledOnly: filter.ScheduledOnly,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	audits := make([]application.Audit, 0, len(records))
	for _, record := range records {
		audits = append(audits, toApplicationAudit(record))
	}
	return audits, nil
}

// CountAuditsForUserOnDate counts a user's assignments on one calendar date.
func (s *AuditStore) CountAuditsForUserOnDate(ctx context.Context, userID string, date time.Time) (int, error) {
	count, err := s.audits.CountAuditsForUserOnDate(ctx, userID, date)
	return count, mapStoreError(err)
}

// ExistsAuditForSiteOnDate reports whether the site already has an audit on
// the given calendar date.
func (s *AuditStore) ExistsAuditForSiteOnDate(ctx context.Context, siteID string, date time.Time) (bool, error) {
	exists, err := s.audits.ExistsAuditForSiteOnDate(ctx, siteID, date)
	return exists, mapStoreError(err)
}

// ListScheduledAuditsForUserBetween returns not-yet-started audits in the
// inclusive window where the user is a participant.
func (s *AuditStore) ListScheduledAuditsForUserBetween(ctx context.Context, userID string, start, end time.Time) ([]application.Audit, error) {
	return s.ListAudits(ctx, application.AuditListFilter{
		ParticipantID: userID,
		From:          &start,
		To:            &end,
		ScheduledOnly: true,
	})
}

// UpdateAuditParticipants rewrites only the participant list of an audit.
func (s *AuditStore) UpdateAuditParticipants(ctx context.Context, auditID string, participantIDs []string) error {
	record, err := s.audits.GetAudit(ctx, auditID)
	if err != nil {
		return mapStoreError(err)
	}
	record.ParticipantIDs = participantIDs
	return mapStoreError(s.audits.UpdateAudit(ctx, record))
}

// RecurringStore adapts RecurringScheduleRepository onto the application's
// recurring schedule port.
type RecurringStore struct {
	schedules RecurringScheduleRepository
}

// NewRecurringStore creates a recurring store backed by the given repository.
func NewRecurringStore(schedules RecurringScheduleRepository) *RecurringStore {
	return &RecurringStore{schedules: schedules}
}

// CreateRecurringSchedule persists a new generation template.
func (s *RecurringStore) CreateRecurringSchedule(ctx context.Context, schedule application.RecurringSchedule) (application.RecurringSchedule, error) {
	if err := s.schedules.CreateRecurringSchedule(ctx, toPersistenceRecurringSchedule(schedule)); err != nil {
		return application.RecurringSchedule{}, mapStoreError(err)
	}
	return s.GetRecurringSchedule(ctx, schedule.ID)
}

// GetRecurringSchedule retrieves a template by ID.
func (s *RecurringStore) GetRecurringSchedule(ctx context.Context, id string) (application.RecurringSchedule, error) {
	record, err := s.schedules.GetRecurringSchedule(ctx, id)
	if err != nil {
		return application.RecurringSchedule{}, mapStoreError(err)
	}
	return toApplicationRecurringSchedule(record), nil
}

// SaveRecurringSchedule rewrites a template, including its watermark.
func (s *RecurringStore) SaveRecurringSchedule(ctx context.Context, schedule application.RecurringSchedule) (application.RecurringSchedule, error) {
	if err := s.schedules.UpdateRecurringSchedule(ctx, toPersistenceRecurringSchedule(schedule)); err != nil {
		return application.RecurringSchedule{}, mapStoreError(err)
	}
	return s.GetRecurringSchedule(ctx, schedule.ID)
}

// ListRecurringSchedules returns templates, optionally only active ones.
func (s *RecurringStore) ListRecurringSchedules(ctx context.Context, activeOnly bool) ([]application.RecurringSchedule, error) {
	records, err := s.schedules.ListRecurringSchedules(ctx, activeOnly)
	if err != nil {
		return nil, mapStoreError(err)
	}
	schedules := make([]application.RecurringSchedule, 0, len(records))
	for _, record := range records {
		schedules = append(schedules, toApplicationRecurringSchedule(record))
	}
	return schedules, nil
}

// DeleteRecurringSchedule removes a template by ID.
func (s *RecurringStore) DeleteRecurringSchedule(ctx context.Context, id string) error {
	return mapStoreError(s.schedules.DeleteRecurringSchedule(ctx, id))
}

// SessionStore adapts SessionRepository onto the application's session port.
type SessionStore struct {
	sessions SessionRepository
}

// NewSessionStore creates a session store backed by the given repository.
func NewSessionStore(sessions SessionRepository) *SessionStore {
	return &SessionStore{sessions: sessions}
}

// CreateSession persists a newly issued session.
func (s *SessionStore) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := s.sessions.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, mapStoreError(err)
	}
	return toApplicationSession(stored), nil
}

// GetSession retrieves a session by token.
func (s *SessionStore) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, mapStoreError(err)
	}
	return toApplicationSession(stored), nil
}

// RevokeSession stamps a revocation time onto a session.
func (s *SessionStore) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := s.sessions.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, mapStoreError(err)
	}
	return toApplicationSession(stored), nil
}

// DeleteExpiredSessions prunes sessions that expired before the reference
// time.
func (s *SessionStore) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return mapStoreError(s.sessions.DeleteExpiredSessions(ctx, reference))
}

// --- model conversions ---

func toPersistenceUser(user application.User) User {
	return User{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        Role(user.Role),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func toApplicationUser(user User) application.User {
	return application.User{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        application.Role(user.Role),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func toPersistenceSite(site application.Site) Site {
	return Site{
		ID:        site.ID,
		Name:      site.Name,
		Level:     site.Level,
		ParentID:  site.ParentID,
		ChildIDs:  site.ChildIDs,
		CheckIDs:  site.CheckIDs,
		CreatedAt: site.CreatedAt,
		UpdatedAt: site.UpdatedAt,
	}
}

func toApplicationSite(site Site) application.Site {
	return application.Site{
		ID:        site.ID,
		Name:      site.Name,
		Level:     site.Level,
		ParentID:  site.ParentID,
		ChildIDs:  site.ChildIDs,
		CheckIDs:  site.CheckIDs,
		CreatedAt: site.CreatedAt,
		UpdatedAt: site.UpdatedAt,
	}
}

func toPersistenceChecklistItem(item application.ChecklistItem) ChecklistItem {
	return ChecklistItem{
		ID:          item.ID,
		SiteID:      item.SiteID,
		Text:        item.Text,
		Description: item.Description,
		ImageIDs:    item.ImageIDs,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toApplicationChecklistItem(item ChecklistItem) application.ChecklistItem {
	return application.ChecklistItem{
		ID:          item.ID,
		SiteID:      item.SiteID,
		Text:        item.Text,
		Description: item.Description,
		ImageIDs:    item.ImageIDs,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toPersistenceBreak(record application.Break) Break {
	return Break{
		ID:        record.ID,
		UserID:    record.UserID,
		StartDate: record.StartDate,
		EndDate:   record.EndDate,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func toApplicationBreak(record Break) application.Break {
	return application.Break{
		ID:        record.ID,
		UserID:    record.UserID,
		StartDate: record.StartDate,
		EndDate:   record.EndDate,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func toApplicationBreaks(records []Break) []application.Break {
	breaks := make([]application.Break, 0, len(records))
	for _, record := range records {
		breaks = append(breaks, toApplicationBreak(record))
	}
	return breaks
}

func toPersistenceAudit(audit application.Audit) Audit {
	results := make([]CheckResult, 0, len(audit.Results))
	for _, result := range audit.Results {
		results = append(results, CheckResult{
			CheckID: result.CheckID,
			Text:    result.Text,
			Passed:  result.Passed,
			Comment: result.Comment,
			ImageID: result.ImageID,
		})
	}
	return Audit{
		ID:             audit.ID,
		SiteID:         audit.SiteID,
		SiteName:       audit.SiteName,
		ParticipantIDs: audit.ParticipantIDs,
		OnDate:         audit.OnDate,
		StartedAt:      audit.StartedAt,
		CompletedAt:    audit.CompletedAt,
		Results:        results,
		CreatedAt:      audit.CreatedAt,
		UpdatedAt:      audit.UpdatedAt,
	}
}

func toApplicationAudit(audit Audit) application.Audit {
	results := make([]application.CheckResult, 0, len(audit.Results))
	for _, result := range audit.Results {
		results = append(results, application.CheckResult{
			CheckID: result.CheckID,
			Text:    result.Text,
			Passed:  result.Passed,
			Comment: result.Comment,
			ImageID: result.ImageID,
		})
	}
	return application.Audit{
		ID:             audit.ID,
		SiteID:         audit.SiteID,
		SiteName:       audit.SiteName,
		ParticipantIDs: audit.ParticipantIDs,
		OnDate:         audit.OnDate,
		StartedAt:      audit.StartedAt,
		CompletedAt:    audit.CompletedAt,
		Results:        results,
		CreatedAt:      audit.CreatedAt,
		UpdatedAt:      audit.UpdatedAt,
	}
}

func toPersistenceRecurringSchedule(schedule application.RecurringSchedule) RecurringSchedule {
	return RecurringSchedule{
		ID:                schedule.ID,
		Name:              schedule.Name,
		SiteIDs:           schedule.SiteIDs,
		Frequency:         string(schedule.Frequency),
		AuditorPool:       schedule.AuditorPool,
		AuditorsPerAudit:  schedule.AuditorsPerAudit,
		MaxAuditsPerDay:   schedule.MaxAuditsPerDay,
		Active:            schedule.Active,
		LastGeneratedDate: schedule.LastGeneratedDate,
		CreatedAt:         schedule.CreatedAt,
		UpdatedAt:         schedule.UpdatedAt,
	}
}

func toApplicationRecurringSchedule(schedule RecurringSchedule) application.RecurringSchedule {
	return application.RecurringSchedule{
		ID:                schedule.ID,
		Name:              schedule.Name,
		SiteIDs:           schedule.SiteIDs,
		Frequency:         scheduling.Frequency(schedule.Frequency),
		AuditorPool:       schedule.AuditorPool,
		AuditorsPerAudit:  schedule.AuditorsPerAudit,
		MaxAuditsPerDay:   schedule.MaxAuditsPerDay,
		Active:            schedule.Active,
		LastGeneratedDate: schedule.LastGeneratedDate,
		CreatedAt:         schedule.CreatedAt,
		UpdatedAt:         schedule.UpdatedAt,
	}
}

func toPersistenceSession(session application.Session) Session {
	return Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		RevokedAt: session.RevokedAt,
	}
}

func toApplicationSession(session Session) application.Session {
	return application.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		RevokedAt: session.RevokedAt,
	}
}
