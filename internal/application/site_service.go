package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// maxSiteLevel caps the facility tree depth: building (0), floor (1), room (2).
const maxSiteLevel = 2

// SiteRepository captures the persistence operations needed by the site service.
type SiteRepository interface {
	CreateSite(ctx context.Context, site Site) (Site, error)
	GetSite(ctx context.Context, id string) (Site, error)
	UpdateSite(ctx context.Context, site Site) (Site, error)
	DeleteSite(ctx context.Context, id string) error
	ListSites(ctx context.Context) ([]Site, error)
}

// ChecklistItemRepository captures persistence for per-site checklist items.
type ChecklistItemRepository interface {
	CreateChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error)
	GetChecklistItem(ctx context.Context, id string) (ChecklistItem, error)
	DeleteChecklistItem(ctx context.Context, id string) error
	ListChecklistItemsForSite(ctx context.Context, siteID string) ([]ChecklistItem, error)
}

// SiteService maintains the facility tree and its checklist items. The tree
// invariants live here: a node carries either children or checklist items,
// never both, and root nodes never carry checklist items directly.
type SiteService struct {
	sites       SiteRepository
	checks      ChecklistItemRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSiteService wires dependencies for the site service.
func NewSiteService(sites SiteRepository, checks ChecklistItemRepository, idGenerator func() string, now func() time.Time) *SiteService {
	return NewSiteServiceWithLogger(sites, checks, idGenerator, now, nil)
}

// NewSiteServiceWithLogger constructs a SiteService with a specified logger.
func NewSiteServiceWithLogger(sites SiteRepository, checks ChecklistItemRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SiteService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SiteService{
		sites:       sites,
		checks:      checks,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SiteService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SiteService", operation, attrs...)
}

// CreateSite adds a node to the facility tree for administrators. The level is
// derived from the parent, never supplied by the caller.
func (s *SiteService) CreateSite(ctx context.Context, params CreateSiteParams) (Site, error) {
	if s == nil {
		return Site{}, fmt.Errorf("SiteService is nil")
	}
	if !params.Principal.IsAdmin() {
		return Site{}, ErrUnauthorized
	}
	if s.sites == nil {
		return Site{}, fmt.Errorf("site repository not configured")
	}

	name := strings.TrimSpace(params.Input.Name)
	vErr := &ValidationError{}
	if name == "" {
		vErr.add("name", "name is required")
	}

	level := 0
	if params.Input.ParentID != nil {
		parent, err := s.sites.GetSite(ctx, *params.Input.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				vErr.add("parent_id", "parent site does not exist")
				return Site{}, vErr
			}
			return Site{}, err
		}
		if len(parent.CheckIDs) > 0 {
			vErr.add("parent_id", "parent site already has checklist items and cannot have children")
		}
		level = parent.Level + 1
		if level > maxSiteLevel {
			vErr.add("parent_id", fmt.Sprintf("site tree depth is limited to %d levels", maxSiteLevel+1))
		}
	}
	if vErr.HasErrors() {
		return Site{}, vErr
	}

	createdAt := s.now()
	site := Site{
		ID:        s.idGenerator(),
		Name:      name,
		Level:     level,
		ParentID:  params.Input.ParentID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	persisted, err := s.sites.CreateSite(ctx, site)
	if err != nil {
		return Site{}, err
	}

	s.loggerWith(ctx, "CreateSite", "site_id", persisted.ID, "level", persisted.Level).
		InfoContext(ctx, "site created")
	return persisted, nil
}

// UpdateSite renames a node. Reparenting is not supported; moving a subtree
// would invalidate derived levels.
func (s *SiteService) UpdateSite(ctx context.Context, params UpdateSiteParams) (Site, error) {
	if s == nil {
		return Site{}, fmt.Errorf("SiteService is nil")
	}
	if !params.Principal.IsAdmin() {
		return Site{}, ErrUnauthorized
	}
	if s.sites == nil {
		return Site{}, fmt.Errorf("site repository not configured")
	}

	name := strings.TrimSpace(params.Input.Name)
	if name == "" {
		vErr := &ValidationError{}
		vErr.add("name", "name is required")
		return Site{}, vErr
	}

	site, err := s.sites.GetSite(ctx, params.SiteID)
	if err != nil {
		return Site{}, err
	}

	site.Name = name
	site.UpdatedAt = s.now()
	return s.sites.UpdateSite(ctx, site)
}

// GetSite returns one node of the tree.
func (s *SiteService) GetSite(ctx context.Context, siteID string) (Site, error) {
	if s == nil {
		return Site{}, fmt.Errorf("SiteService is nil")
	}
	if s.sites == nil {
		return Site{}, fmt.Errorf("site repository not configured")
	}
	return s.sites.GetSite(ctx, siteID)
}

// ListSites returns the whole tree as a flat slice; callers rebuild the
// hierarchy from ParentID when they need it.
func (s *SiteService) ListSites(ctx context.Context) ([]Site, error) {
	if s == nil {
		return nil, fmt.Errorf("SiteService is nil")
	}
	if s.sites == nil {
		return nil, nil
	}
	return s.sites.ListSites(ctx)
}

// DeleteSite removes a leaf node and its checklist items. Nodes with children
// must be emptied first.
func (s *SiteService) DeleteSite(ctx context.Context, principal Principal, siteID string) error {
	if s == nil {
		return fmt.Errorf("SiteService is nil")
	}
	if !principal.IsAdmin() {
		return ErrUnauthorized
	}
	if s.sites == nil {
		return fmt.Errorf("site repository not configured")
	}

	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	if len(site.ChildIDs) > 0 {
		vErr := &ValidationError{}
		vErr.add("site_id", "site still has child sites")
		return vErr
	}

	if s.checks != nil {
		for _, checkID := range site.CheckIDs {
			if err := s.checks.DeleteChecklistItem(ctx, checkID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
	}

	if err := s.sites.DeleteSite(ctx, siteID); err != nil {
		return err
	}

	s.loggerWith(ctx, "DeleteSite", "site_id", siteID).InfoContext(ctx, "site deleted")
	return nil
}

// AddChecklistItem attaches an inspection question to a leaf site. Sites with
// children cannot carry items, and root sites never can.
func (s *SiteService) AddChecklistItem(ctx context.Context, params AddChecklistItemParams) (ChecklistItem, error) {
	if s == nil {
		return ChecklistItem{}, fmt.Errorf("SiteService is nil")
	}
	if !params.Principal.IsAdmin() {
		return ChecklistItem{}, ErrUnauthorized
	}
	if s.sites == nil || s.checks == nil {
		return ChecklistItem{}, fmt.Errorf("site service not configured")
	}

	text := strings.TrimSpace(params.Input.Text)
	vErr := &ValidationError{}
	if text == "" {
		vErr.add("text", "text is required")
	}

	site, err := s.sites.GetSite(ctx, params.SiteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			vErr.add("site_id", "site does not exist")
			return ChecklistItem{}, vErr
		}
		return ChecklistItem{}, err
	}
	if len(site.ChildIDs) > 0 {
		vErr.add("site_id", "site has child sites and cannot carry checklist items")
	}
	if site.Level == 0 {
		vErr.add("site_id", "top level sites cannot carry checklist items")
	}
	if vErr.HasErrors() {
		return ChecklistItem{}, vErr
	}

	createdAt := s.now()
	item := ChecklistItem{
		ID:          s.idGenerator(),
		SiteID:      site.ID,
		Text:        text,
		Description: strings.TrimSpace(params.Input.Description),
		ImageIDs:    append([]string(nil), params.Input.ImageIDs...),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	persisted, err := s.checks.CreateChecklistItem(ctx, item)
	if err != nil {
		return ChecklistItem{}, err
	}

	site.CheckIDs = append(site.CheckIDs, persisted.ID)
	site.UpdatedAt = createdAt
	if _, err := s.sites.UpdateSite(ctx, site); err != nil {
		return ChecklistItem{}, err
	}
	return persisted, nil
}

// RemoveChecklistItem detaches and deletes an inspection question.
func (s *SiteService) RemoveChecklistItem(ctx context.Context, principal Principal, checkID string) error {
	if s == nil {
		return fmt.Errorf("SiteService is nil")
	}
	if !principal.IsAdmin() {
		return ErrUnauthorized
	}
	if s.sites == nil || s.checks == nil {
		return fmt.Errorf("site service not configured")
	}

	item, err := s.checks.GetChecklistItem(ctx, checkID)
	if err != nil {
		return err
	}

	if err := s.checks.DeleteChecklistItem(ctx, checkID); err != nil {
		return err
	}

	site, err := s.sites.GetSite(ctx, item.SiteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	site.CheckIDs = removeID(site.CheckIDs, checkID)
	site.UpdatedAt = s.now()
	_, err = s.sites.UpdateSite(ctx, site)
	return err
}

// ListChecklistItems returns the items attached to one site.
func (s *SiteService) ListChecklistItems(ctx context.Context, siteID string) ([]ChecklistItem, error) {
	if s == nil {
		return nil, fmt.Errorf("SiteService is nil")
	}
	if s.checks == nil {
		return nil, nil
	}
	return s.checks.ListChecklistItemsForSite(ctx, siteID)
}
