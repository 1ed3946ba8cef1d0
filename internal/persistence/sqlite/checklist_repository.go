package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/facility-audit/internal/persistence"
)

// ChecklistRepository implements persistence.ChecklistRepository using SQLite.
type ChecklistRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewChecklistRepository creates a new SQLite checklist repository.
func NewChecklistRepository(pool *ConnectionPool) *ChecklistRepository {
	return &ChecklistRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const checklistColumns = "id, site_id, text, description, image_ids, created_at, updated_at"

// CreateChecklistItem inserts a new inspection question.
func (r *ChecklistRepository) CreateChecklistItem(ctx context.Context, item persistence.ChecklistItem) error {
	if item.ID == "" || item.SiteID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	imageIDs, err := encodeStringList(item.ImageIDs)
	if err != nil {
		return err
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO checklist_items (`+checklistColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SiteID,
		item.Text,
		item.Description,
		imageIDs,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetChecklistItem retrieves a checklist item by ID.
func (r *ChecklistRepository) GetChecklistItem(ctx context.Context, id string) (persistence.ChecklistItem, error) {
	if id == "" {
		return persistence.ChecklistItem{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+checklistColumns+" FROM checklist_items WHERE id = ?", id)
	return r.scanChecklistItem(row)
}

// ListChecklistItems returns the items matching the given IDs in the order
// the IDs were supplied. Missing IDs are silently dropped so callers can
// resolve stale references.
func (r *ChecklistRepository) ListChecklistItems(ctx context.Context, ids []string) ([]persistence.ChecklistItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.helper.Query(ctx,
		"SELECT "+checklistColumns+" FROM checklist_items WHERE id IN ("+strings.Join(placeholders, ", ")+")",
		args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	byID := make(map[string]persistence.ChecklistItem, len(ids))
	for rows.Next() {
		item, err := r.scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	items := make([]persistence.ChecklistItem, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// DeleteChecklistItem removes a checklist item and any site references to it.
func (r *ChecklistRepository) DeleteChecklistItem(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(tx, "DELETE FROM site_checks WHERE check_id = ?", id); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := r.helper.ExecTx(tx, "DELETE FROM checklist_items WHERE id = ?", id)
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
	})
}

func (r *ChecklistRepository) scanChecklistItem(row rowScanner) (persistence.ChecklistItem, error) {
	var item persistence.ChecklistItem
	var imageIDs, createdAt, updatedAt string

	err := row.Scan(
		&item.ID,
		&item.SiteID,
		&item.Text,
		&item.Description,
		&imageIDs,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ChecklistItem{}, persistence.ErrNotFound
		}
		return persistence.ChecklistItem{}, r.mapper.MapError(err)
	}

	if item.ImageIDs, err = decodeStringList("image_ids", imageIDs); err != nil {
		return persistence.ChecklistItem{}, err
	}
	if item.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.ChecklistItem{}, err
	}
	if item.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.ChecklistItem{}, err
	}
	return item, nil
}
