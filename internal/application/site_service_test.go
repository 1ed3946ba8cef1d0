package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type siteRepoStub struct {
	sites map[string]Site
}

func newSiteRepoStub(sites ...Site) *siteRepoStub {
	stub := &siteRepoStub{sites: make(map[string]Site)}
	for _, site := range sites {
		stub.sites[site.ID] = site
	}
	return stub
}

func (s *siteRepoStub) CreateSite(ctx context.Context, site Site) (Site, error) {
	s.sites[site.ID] = site
	if site.ParentID != nil {
		parent := s.sites[*site.ParentID]
		parent.ChildIDs = append(parent.ChildIDs, site.ID)
		s.sites[*site.ParentID] = parent
	}
	return site, nil
}

func (s *siteRepoStub) GetSite(ctx context.Context, id string) (Site, error) {
	site, ok := s.sites[id]
	if !ok {
		return Site{}, ErrNotFound
	}
	return site, nil
}

func (s *siteRepoStub) UpdateSite(ctx context.Context, site Site) (Site, error) {
	if _, ok := s.sites[site.ID]; !ok {
		return Site{}, ErrNotFound
	}
	s.sites[site.ID] = site
	return site, nil
}

func (s *siteRepoStub) DeleteSite(ctx context.Context, id string) error {
	if _, ok := s.sites[id]; !ok {
		return ErrNotFound
	}
	delete(s.sites, id)
	return nil
}

func (s *siteRepoStub) ListSites(ctx context.Context) ([]Site, error) {
	out := make([]Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	return out, nil
}

type checklistRepoStub struct {
	items map[string]ChecklistItem
}

func newChecklistRepoStub() *checklistRepoStub {
	return &checklistRepoStub{items: make(map[string]ChecklistItem)}
}

func (s *checklistRepoStub) CreateChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error) {
	s.items[item.ID] = item
	return item, nil
}

func (s *checklistRepoStub) GetChecklistItem(ctx context.Context, id string) (ChecklistItem, error) {
	item, ok := s.items[id]
	if !ok {
		return ChecklistItem{}, ErrNotFound
	}
	return item, nil
}

func (s *checklistRepoStub) DeleteChecklistItem(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *checklistRepoStub) ListChecklistItemsForSite(ctx context.Context, siteID string) ([]ChecklistItem, error) {
	out := make([]ChecklistItem, 0)
	for _, item := range s.items {
		if item.SiteID == siteID {
			out = append(out, item)
		}
	}
	return out, nil
}

func newSiteService(sites *siteRepoStub, checks *checklistRepoStub) *SiteService {
	sequence := 0
	return NewSiteService(sites, checks,
		func() string { sequence++; return fmt.Sprintf("id-%d", sequence) },
		func() time.Time { return midnightUTC(2025, 6, 1) })
}

func TestSiteService_CreateSite_DerivesLevelFromParent(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "building", Name: "HQ", Level: 0})
	svc := newSiteService(repo, newChecklistRepoStub())

	parentID := "building"
	floor, err := svc.CreateSite(context.Background(), CreateSiteParams{
		Principal: adminPrincipal(),
		Input:     SiteInput{Name: "Floor 2", ParentID: &parentID},
	})
	if err != nil {
		t.Fatalf("CreateSite returned error: %v", err)
	}
	if floor.Level != 1 {
		t.Fatalf("level = %d, want 1", floor.Level)
	}
}

func TestSiteService_CreateSite_RejectsDepthBeyondRooms(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "room", Name: "Lab", Level: 2})
	svc := newSiteService(repo, newChecklistRepoStub())

	parentID := "room"
	_, err := svc.CreateSite(context.Background(), CreateSiteParams{
		Principal: adminPrincipal(),
		Input:     SiteInput{Name: "Shelf", ParentID: &parentID},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["parent_id"]; !ok {
		t.Fatalf("expected parent_id error, got %v", vErr.FieldErrors)
	}
}

func TestSiteService_CreateSite_RejectsParentWithChecklistItems(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "room", Name: "Lab", Level: 1, CheckIDs: []string{"check-1"}})
	svc := newSiteService(repo, newChecklistRepoStub())

	parentID := "room"
	_, err := svc.CreateSite(context.Background(), CreateSiteParams{
		Principal: adminPrincipal(),
		Input:     SiteInput{Name: "Corner", ParentID: &parentID},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSiteService_AddChecklistItem_AttachesToLeafAndUpdatesSite(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "room", Name: "Lab", Level: 2})
	checks := newChecklistRepoStub()
	svc := newSiteService(repo, checks)

	item, err := svc.AddChecklistItem(context.Background(), AddChecklistItemParams{
		Principal: adminPrincipal(),
		SiteID:    "room",
		Input:     ChecklistItemInput{Text: "Door seals intact"},
	})
	if err != nil {
		t.Fatalf("AddChecklistItem returned error: %v", err)
	}

	site := repo.sites["room"]
	if len(site.CheckIDs) != 1 || site.CheckIDs[0] != item.ID {
		t.Fatalf("site checklist not updated: %v", site.CheckIDs)
	}
}

func TestSiteService_AddChecklistItem_RejectsRootAndBranchSites(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(
		Site{ID: "building", Name: "HQ", Level: 0},
		Site{ID: "floor", Name: "Floor 2", Level: 1, ChildIDs: []string{"room"}},
	)
	svc := newSiteService(repo, newChecklistRepoStub())

	for _, siteID := range []string{"building", "floor"} {
		_, err := svc.AddChecklistItem(context.Background(), AddChecklistItemParams{
			Principal: adminPrincipal(),
			SiteID:    siteID,
			Input:     ChecklistItemInput{Text: "Question"},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("site %s: expected ValidationError, got %v", siteID, err)
		}
	}
}

func TestSiteService_RemoveChecklistItem_DetachesFromSite(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "room", Name: "Lab", Level: 2, CheckIDs: []string{"check-1"}})
	checks := newChecklistRepoStub()
	checks.items["check-1"] = ChecklistItem{ID: "check-1", SiteID: "room", Text: "Q"}
	svc := newSiteService(repo, checks)

	if err := svc.RemoveChecklistItem(context.Background(), adminPrincipal(), "check-1"); err != nil {
		t.Fatalf("RemoveChecklistItem returned error: %v", err)
	}
	if len(repo.sites["room"].CheckIDs) != 0 {
		t.Fatalf("check id still attached: %v", repo.sites["room"].CheckIDs)
	}
	if _, ok := checks.items["check-1"]; ok {
		t.Fatal("checklist item still stored")
	}
}

func TestSiteService_DeleteSite_RefusesNodesWithChildren(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "floor", Name: "Floor 2", Level: 1, ChildIDs: []string{"room"}})
	svc := newSiteService(repo, newChecklistRepoStub())

	err := svc.DeleteSite(context.Background(), adminPrincipal(), "floor")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSiteService_DeleteSite_RemovesAttachedChecklistItems(t *testing.T) {
	t.Parallel()

	repo := newSiteRepoStub(Site{ID: "room", Name: "Lab", Level: 2, CheckIDs: []string{"check-1"}})
	checks := newChecklistRepoStub()
	checks.items["check-1"] = ChecklistItem{ID: "check-1", SiteID: "room"}
	svc := newSiteService(repo, checks)

	if err := svc.DeleteSite(context.Background(), adminPrincipal(), "room"); err != nil {
		t.Fatalf("DeleteSite returned error: %v", err)
	}
	if len(checks.items) != 0 {
		t.Fatal("orphaned checklist items remain")
	}
}

func TestSiteService_MutationsRequireAdmin(t *testing.T) {
	t.Parallel()

	svc := newSiteService(newSiteRepoStub(), newChecklistRepoStub())
	principal := Principal{UserID: "user-1", Role: RoleAuditor}

	if _, err := svc.CreateSite(context.Background(), CreateSiteParams{Principal: principal, Input: SiteInput{Name: "X"}}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("CreateSite: expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteSite(context.Background(), principal, "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("DeleteSite: expected ErrUnauthorized, got %v", err)
	}
}
