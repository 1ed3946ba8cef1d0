package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/facility-audit/internal/persistence"
)

// AuditRepository implements persistence.AuditRepository using SQLite.
// Participants and per-check results live in child tables keyed by position
// so slice ordering survives a round trip.
type AuditRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAuditRepository creates a new SQLite audit repository.
func NewAuditRepository(pool *ConnectionPool) *AuditRepository {
	return &AuditRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const auditColumns = "id, site_id, site_name, on_date, started_at, completed_at, created_at, updated_at"

// CreateAudit inserts an audit with its participants and check results. The
// UNIQUE(site_id, on_date) constraint surfaces as persistence.ErrDuplicate.
func (r *AuditRepository) CreateAudit(ctx context.Context, audit persistence.Audit) error {
	if audit.ID == "" || audit.SiteID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	audit.UpdatedAt = now

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO audits (`+auditColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			audit.ID,
			audit.SiteID,
			audit.SiteName,
			formatDate(audit.OnDate),
			nullableTime(audit.StartedAt),
			nullableTime(audit.CompletedAt),
			formatTime(audit.CreatedAt),
			formatTime(audit.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		if err := r.insertParticipantsTx(tx, audit.ID, audit.ParticipantIDs); err != nil {
			return err
		}
		return r.insertResultsTx(tx, audit.ID, audit.Results)
	})
}

// UpdateAudit rewrites an audit, its participants, and its results.
func (r *AuditRepository) UpdateAudit(ctx context.Context, audit persistence.Audit) error {
	if audit.ID == "" {
		return persistence.ErrNotFound
	}

	audit.UpdatedAt = time.Now().UTC()

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE audits
			SET site_name = ?, started_at = ?, completed_at = ?, updated_at = ?
			WHERE id = ?`,
			audit.SiteName,
			nullableTime(audit.StartedAt),
			nullableTime(audit.CompletedAt),
			formatTime(audit.UpdatedAt),
			audit.ID,
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

		if _, err := r.helper.ExecTx(tx, "DELETE FROM audit_participants WHERE audit_id = ?", audit.ID); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.ExecTx(tx, "DELETE FROM audit_results WHERE audit_id = ?", audit.ID); err != nil {
			return r.mapper.MapError(err)
		}

		if err := r.insertParticipantsTx(tx, audit.ID, audit.ParticipantIDs); err != nil {
			return err
		}
		return r.insertResultsTx(tx, audit.ID, audit.Results)
	})
}

// GetAudit retrieves an audit by ID including participants and results.
func (r *AuditRepository) GetAudit(ctx context.Context, id string) (persistence.Audit, error) {
	if id == "" {
		return persistence.Audit{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+auditColumns+" FROM audits WHERE id = ?", id)
	audit, err := r.scanAudit(row)
	if err != nil {
		return persistence.Audit{}, err
	}
	return r.loadChildren(ctx, audit)
}

// ListAudits returns audits matching the filter ordered by date then ID.
func (r *AuditRepository) ListAudits(ctx context.Context, filter persistence.AuditFilter) ([]persistence.Audit, error) {
	query := "SELECT " + auditColumns + " FROM audits"
	var clauses []string
	var args []any

	if filter.ParticipantID != "" {
		clauses = append(clauses, "id IN (SELECT audit_id FROM audit_participants WHERE user_id = ?)")
		args = append(args, filter.ParticipantID)
	}
	if filter.OnOrAfter != nil {
		clauses = append(clauses, "on_date >= ?")
		args = append(args, formatDate(*filter.OnOrAfter))
	}
	if filter.OnOrBefore != nil {
		clauses = append(clauses, "on_date <= ?")
		args = append(args, formatDate(*filter.OnOrBefore))
	}
	if filter.ScheduledOnly {
		clauses = append(clauses, "started_at IS NULL")
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY on_date ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var audits []persistence.Audit
	for rows.Next() {
		audit, err := r.scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	for i := range audits {
		if audits[i], err = r.loadChildren(ctx, audits[i]); err != nil {
			return nil, err
		}
	}
	return audits, nil
}

// CountAuditsForUserOnDate counts the audits a user participates in on one
// calendar date.
func (r *AuditRepository) CountAuditsForUserOnDate(ctx context.Context, userID string, date time.Time) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx, `
		SELECT COUNT(*) FROM audits a
		JOIN audit_participants p ON p.audit_id = a.id
		WHERE p.user_id = ? AND a.on_date = ?`,
		userID, formatDate(date),
	).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// ExistsAuditForSiteOnDate reports whether the site already has an audit on
// the given calendar date.
func (r *AuditRepository) ExistsAuditForSiteOnDate(ctx context.Context, siteID string, date time.Time) (bool, error) {
	var count int
	err := r.helper.QueryRow(ctx,
		"SELECT COUNT(*) FROM audits WHERE site_id = ? AND on_date = ?",
		siteID, formatDate(date),
	).Scan(&count)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return count > 0, nil
}

// DeleteAudit removes an audit by ID. Participants and results cascade.
func (r *AuditRepository) DeleteAudit(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, "DELETE FROM audits WHERE id = ?", id)
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

func (r *AuditRepository) insertParticipantsTx(tx *sql.Tx, auditID string, participantIDs []string) error {
	for position, userID := range participantIDs {
		_, err := r.helper.ExecTx(tx,
			"INSERT INTO audit_participants (audit_id, user_id, position) VALUES (?, ?, ?)",
			auditID, userID, position,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *AuditRepository) insertResultsTx(tx *sql.Tx, auditID string, results []persistence.CheckResult) error {
	for position, result := range results {
		var passed sql.NullBool
		if result.Passed != nil {
			passed = sql.NullBool{Bool: *result.Passed, Valid: true}
		}
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO audit_results (audit_id, check_id, text, passed, comment, image_id, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			auditID, result.CheckID, result.Text, passed, result.Comment, result.ImageID, position,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *AuditRepository) loadChildren(ctx context.Context, audit persistence.Audit) (persistence.Audit, error) {
	rows, err := r.helper.Query(ctx,
		"SELECT user_id FROM audit_participants WHERE audit_id = ? ORDER BY position ASC", audit.ID)
	if err != nil {
		return persistence.Audit{}, r.mapper.MapError(err)
	}
	audit.ParticipantIDs, err = collectIDs(rows, r.mapper)
	rows.Close()
	if err != nil {
		return persistence.Audit{}, err
	}

	resultRows, err := r.helper.Query(ctx, `
		SELECT check_id, text, passed, comment, image_id
		FROM audit_results WHERE audit_id = ? ORDER BY position ASC`, audit.ID)
	if err != nil {
		return persistence.Audit{}, r.mapper.MapError(err)
	}
	defer resultRows.Close()

	for resultRows.Next() {
		var result persistence.CheckResult
		var passed sql.NullBool
		if err := resultRows.Scan(&result.CheckID, &result.Text, &passed, &result.Comment, &result.ImageID); err != nil {
			return persistence.Audit{}, r.mapper.MapError(err)
		}
		if passed.Valid {
			value := passed.Bool
			result.Passed = &value
		}
		audit.Results = append(audit.Results, result)
	}
	if err := resultRows.Err(); err != nil {
		return persistence.Audit{}, r.mapper.MapError(err)
	}
	return audit, nil
}

func (r *AuditRepository) scanAudit(row rowScanner) (persistence.Audit, error) {
	var audit persistence.Audit
	var onDate, createdAt, updatedAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(
		&audit.ID,
		&audit.SiteID,
		&audit.SiteName,
		&onDate,
		&startedAt,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Audit{}, persistence.ErrNotFound
		}
		return persistence.Audit{}, r.mapper.MapError(err)
	}

	if audit.OnDate, err = parseDate("on_date", onDate); err != nil {
		return persistence.Audit{}, err
	}
	if audit.StartedAt, err = parseNullableTime("started_at", startedAt); err != nil {
		return persistence.Audit{}, err
	}
	if audit.CompletedAt, err = parseNullableTime("completed_at", completedAt); err != nil {
		return persistence.Audit{}, err
	}
	if audit.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Audit{}, err
	}
	if audit.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Audit{}, err
	}
	return audit, nil
}
