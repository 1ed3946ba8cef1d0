package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/facility-audit/internal/persistence"
)

// BreakRepository implements persistence.BreakRepository using SQLite.
type BreakRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBreakRepository creates a new SQLite break repository.
func NewBreakRepository(pool *ConnectionPool) *BreakRepository {
	return &BreakRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const breakColumns = "id, user_id, start_date, end_date, created_at, updated_at"

// CreateBreak inserts a new unavailability window.
func (r *BreakRepository) CreateBreak(ctx context.Context, record persistence.Break) error {
	if record.ID == "" || record.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := r.helper.Exec(ctx, `
		INSERT INTO breaks (`+breakColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		formatDate(record.StartDate),
		formatDate(record.EndDate),
		formatTime(record.CreatedAt),
		formatTime(record.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateBreak rewrites the window of an existing break.
func (r *BreakRepository) UpdateBreak(ctx context.Context, record persistence.Break) error {
	if record.ID == "" {
		return persistence.ErrNotFound
	}

	record.UpdatedAt = time.Now().UTC()

	result, err := r.helper.Exec(ctx, `
		UPDATE breaks SET start_date = ?, end_date = ?, updated_at = ? WHERE id = ?`,
		formatDate(record.StartDate),
		formatDate(record.EndDate),
		formatTime(record.UpdatedAt),
		record.ID,
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

// GetBreak retrieves a break by ID.
func (r *BreakRepository) GetBreak(ctx context.Context, id string) (persistence.Break, error) {
	if id == "" {
		return persistence.Break{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+breakColumns+" FROM breaks WHERE id = ?", id)
	return r.scanBreak(row)
}

// ListBreaksOverlapping returns every break whose inclusive window
// intersects [start, end].
func (r *BreakRepository) ListBreaksOverlapping(ctx context.Context, start, end time.Time) ([]persistence.Break, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT `+breakColumns+` FROM breaks
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC`,
		formatDate(end), formatDate(start))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	return r.collectBreaks(rows)
}

// ListBreaksForUser returns the breaks registered for one user ordered by
// start date.
func (r *BreakRepository) ListBreaksForUser(ctx context.Context, userID string) ([]persistence.Break, error) {
	if userID == "" {
		return nil, nil
	}

	rows, err := r.helper.Query(ctx, `
		SELECT `+breakColumns+` FROM breaks
		WHERE user_id = ? ORDER BY start_date ASC, id ASC`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	return r.collectBreaks(rows)
}

// DeleteBreak removes a break by ID.
func (r *BreakRepository) DeleteBreak(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, "DELETE FROM breaks WHERE id = ?", id)
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

func (r *BreakRepository) scanBreak(row rowScanner) (persistence.Break, error) {
	var record persistence.Break
	var startDate, endDate, createdAt, updatedAt string

	err := row.Scan(&record.ID, &record.UserID, &startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Break{}, persistence.ErrNotFound
		}
		return persistence.Break{}, r.mapper.MapError(err)
	}

	if record.StartDate, err = parseDate("start_date", startDate); err != nil {
		return persistence.Break{}, err
	}
	if record.EndDate, err = parseDate("end_date", endDate); err != nil {
		return persistence.Break{}, err
	}
	if record.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Break{}, err
	}
	if record.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Break{}, err
	}
	return record, nil
}

func (r *BreakRepository) collectBreaks(rows *sql.Rows) ([]persistence.Break, error) {
	var breaks []persistence.Break
	for rows.Next() {
		record, err := r.scanBreak(rows)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return breaks, nil
}
