package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/facility-audit/internal/persistence"
)

// SiteRepository implements persistence.SiteRepository using SQLite. Child
// IDs derive from the parent_id column; check ordering lives in site_checks.
type SiteRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSiteRepository creates a new SQLite site repository.
func NewSiteRepository(pool *ConnectionPool) *SiteRepository {
	return &SiteRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateSite inserts a new site and its check references.
func (r *SiteRepository) CreateSite(ctx context.Context, site persistence.Site) error {
	if site.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = now
	}
	site.UpdatedAt = now

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var parentID sql.NullString
		if site.ParentID != nil {
			parentID = sql.NullString{String: *site.ParentID, Valid: true}
		}

		_, err := r.helper.ExecTx(tx, `
			INSERT INTO sites (id, name, level, parent_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			site.ID,
			site.Name,
			site.Level,
			parentID,
			formatTime(site.CreatedAt),
			formatTime(site.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		return r.replaceSiteChecksTx(tx, site.ID, site.CheckIDs)
	})
}

// UpdateSite updates a site row and rewrites its check references.
func (r *SiteRepository) UpdateSite(ctx context.Context, site persistence.Site) error {
	if site.ID == "" {
		return persistence.ErrNotFound
	}

	site.UpdatedAt = time.Now().UTC()

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE sites SET name = ?, updated_at = ? WHERE id = ?`,
			site.Name,
			formatTime(site.UpdatedAt),
			site.ID,
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

		return r.replaceSiteChecksTx(tx, site.ID, site.CheckIDs)
	})
}

// GetSite retrieves a site by ID, including its children and check IDs.
func (r *SiteRepository) GetSite(ctx context.Context, id string) (persistence.Site, error) {
	if id == "" {
		return persistence.Site{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `
		SELECT id, name, level, parent_id, created_at, updated_at
		FROM sites WHERE id = ?`, id)

	site, err := r.scanSite(row)
	if err != nil {
		return persistence.Site{}, err
	}

	if site.ChildIDs, err = r.childIDs(ctx, site.ID); err != nil {
		return persistence.Site{}, err
	}
	if site.CheckIDs, err = r.checkIDs(ctx, site.ID); err != nil {
		return persistence.Site{}, err
	}
	return site, nil
}

// ListSites returns the whole facility tree as a flat list ordered by level,
// then creation timestamp.
func (r *SiteRepository) ListSites(ctx context.Context) ([]persistence.Site, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, name, level, parent_id, created_at, updated_at
		FROM sites ORDER BY level ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var sites []persistence.Site
	for rows.Next() {
		site, err := r.scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	for i := range sites {
		if sites[i].ChildIDs, err = r.childIDs(ctx, sites[i].ID); err != nil {
			return nil, err
		}
		if sites[i].CheckIDs, err = r.checkIDs(ctx, sites[i].ID); err != nil {
			return nil, err
		}
	}
	return sites, nil
}

// DeleteSite removes a site and its check references. Callers are expected
// to have verified the site carries no children.
func (r *SiteRepository) DeleteSite(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(tx, "DELETE FROM site_checks WHERE site_id = ?", id); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := r.helper.ExecTx(tx, "DELETE FROM sites WHERE id = ?", id)
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

func (r *SiteRepository) replaceSiteChecksTx(tx *sql.Tx, siteID string, checkIDs []string) error {
	if _, err := r.helper.ExecTx(tx, "DELETE FROM site_checks WHERE site_id = ?", siteID); err != nil {
		return r.mapper.MapError(err)
	}
	for position, checkID := range checkIDs {
		_, err := r.helper.ExecTx(tx,
			"INSERT INTO site_checks (site_id, check_id, position) VALUES (?, ?, ?)",
			siteID, checkID, position,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *SiteRepository) childIDs(ctx context.Context, siteID string) ([]string, error) {
	rows, err := r.helper.Query(ctx,
		"SELECT id FROM sites WHERE parent_id = ? ORDER BY created_at ASC, id ASC", siteID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()
	return collectIDs(rows, r.mapper)
}

func (r *SiteRepository) checkIDs(ctx context.Context, siteID string) ([]string, error) {
	rows, err := r.helper.Query(ctx,
		"SELECT check_id FROM site_checks WHERE site_id = ? ORDER BY position ASC", siteID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()
	return collectIDs(rows, r.mapper)
}

func (r *SiteRepository) scanSite(row rowScanner) (persistence.Site, error) {
	var site persistence.Site
	var parentID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&site.ID, &site.Name, &site.Level, &parentID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Site{}, persistence.ErrNotFound
		}
		return persistence.Site{}, r.mapper.MapError(err)
	}

	if parentID.Valid {
		site.ParentID = &parentID.String
	}
	if site.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Site{}, err
	}
	if site.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Site{}, err
	}
	return site, nil
}

func collectIDs(rows *sql.Rows, mapper *ErrorMapper) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapper.MapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return ids, nil
}
