package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/facility-audit/internal/persistence"
)

// RecurringScheduleRepository implements
// persistence.RecurringScheduleRepository using SQLite. Site and pool lists
// are stored as JSON array columns.
type RecurringScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRecurringScheduleRepository creates a new SQLite recurring schedule repository.
func NewRecurringScheduleRepository(pool *ConnectionPool) *RecurringScheduleRepository {
	return &RecurringScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const recurringColumns = "id, name, site_ids, frequency, auditor_pool, auditors_per_audit, max_audits_per_day, active, last_generated_date, created_at, updated_at"

// CreateRecurringSchedule inserts a new generation template.
func (r *RecurringScheduleRepository) CreateRecurringSchedule(ctx context.Context, schedule persistence.RecurringSchedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	siteIDs, err := encodeStringList(schedule.SiteIDs)
	if err != nil {
		return err
	}
	auditorPool, err := encodeStringList(schedule.AuditorPool)
	if err != nil {
		return err
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO recurring_schedules (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.Name,
		siteIDs,
		schedule.Frequency,
		auditorPool,
		schedule.AuditorsPerAudit,
		schedule.MaxAuditsPerDay,
		boolToInt(schedule.Active),
		nullableDate(schedule.LastGeneratedDate),
		formatTime(schedule.CreatedAt),
		formatTime(schedule.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateRecurringSchedule rewrites a template, including its watermark.
func (r *RecurringScheduleRepository) UpdateRecurringSchedule(ctx context.Context, schedule persistence.RecurringSchedule) error {
	if schedule.ID == "" {
		return persistence.ErrNotFound
	}

	schedule.UpdatedAt = time.Now().UTC()

	siteIDs, err := encodeStringList(schedule.SiteIDs)
	if err != nil {
		return err
	}
	auditorPool, err := encodeStringList(schedule.AuditorPool)
	if err != nil {
		return err
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE recurring_schedules
		SET name = ?, site_ids = ?, frequency = ?, auditor_pool = ?,
			auditors_per_audit = ?, max_audits_per_day = ?, active = ?,
			last_generated_date = ?, updated_at = ?
		WHERE id = ?`,
		schedule.Name,
		siteIDs,
		schedule.Frequency,
		auditorPool,
		schedule.AuditorsPerAudit,
		schedule.MaxAuditsPerDay,
		boolToInt(schedule.Active),
		nullableDate(schedule.LastGeneratedDate),
		formatTime(schedule.UpdatedAt),
		schedule.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetRecurringSchedule retrieves a template by ID.
func (r *RecurringScheduleRepository) GetRecurringSchedule(ctx context.Context, id string) (persistence.RecurringSchedule, error) {
	if id == "" {
		return persistence.RecurringSchedule{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+recurringColumns+" FROM recurring_schedules WHERE id = ?", id)
	return r.scanRecurringSchedule(row)
}

// ListRecurringSchedules returns templates ordered by creation timestamp.
// With activeOnly set, disabled templates are filtered out.
func (r *RecurringScheduleRepository) ListRecurringSchedules(ctx context.Context, activeOnly bool) ([]persistence.RecurringSchedule, error) {
	query := "SELECT " + recurringColumns + " FROM recurring_schedules"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.helper.Query(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var schedules []persistence.RecurringSchedule
	for rows.Next() {
		schedule, err := r.scanRecurringSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return schedules, nil
}

// DeleteRecurringSchedule removes a template by ID.
func (r *RecurringScheduleRepository) DeleteRecurringSchedule(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, "DELETE FROM recurring_schedules WHERE id = ?", id)
	if err != nil {
		return r.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *RecurringScheduleRepository) scanRecurringSchedule(row rowScanner) (persistence.RecurringSchedule, error) {
	var schedule persistence.RecurringSchedule
	var siteIDs, auditorPool, createdAt, updatedAt string
	var active int
	var lastGenerated sql.NullString

	err := row.Scan(
		&schedule.ID,
		&schedule.Name,
		&siteIDs,
		&schedule.Frequency,
		&auditorPool,
		&schedule.AuditorsPerAudit,
		&schedule.MaxAuditsPerDay,
		&active,
		&lastGenerated,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.RecurringSchedule{}, persistence.ErrNotFound
		}
		return persistence.RecurringSchedule{}, r.mapper.MapError(err)
	}

	schedule.Active = active != 0
	if schedule.SiteIDs, err = decodeStringList("site_ids", siteIDs); err != nil {
		return persistence.RecurringSchedule{}, err
	}
	if schedule.AuditorPool, err = decodeStringList("auditor_pool", auditorPool); err != nil {
		return persistence.RecurringSchedule{}, err
	}
	if schedule.LastGeneratedDate, err = parseNullableDate("last_generated_date", lastGenerated); err != nil {
		return persistence.RecurringSchedule{}, err
	}
	if schedule.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.RecurringSchedule{}, err
	}
	if schedule.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.RecurringSchedule{}, err
	}
	return schedule, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
