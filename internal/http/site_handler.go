package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/facility-audit/internal/application"
)

type siteService interface {
	CreateSite(ctx context.Context, params application.CreateSiteParams) (application.Site, error)
	UpdateSite(ctx context.Context, params application.UpdateSiteParams) (application.Site, error)
	GetSite(ctx context.Context, siteID string) (application.Site, error)
	ListSites(ctx context.Context) ([]application.Site, error)
	DeleteSite(ctx context.Context, principal application.Principal, siteID string) error
	AddChecklistItem(ctx context.Context, params application.AddChecklistItemParams) (application.ChecklistItem, error)
	RemoveChecklistItem(ctx context.Context, principal application.Principal, checkID string) error
	ListChecklistItems(ctx context.Context, siteID string) ([]application.ChecklistItem, error)
}

type SiteHandler struct {
	service   siteService
	responder responder
	logger    *slog.Logger
}

func NewSiteHandler(service siteService, logger *slog.Logger) *SiteHandler {
	base := defaultLogger(logger)
	return &SiteHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SiteHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SiteHandler", operation, attrs...)
}

func (h *SiteHandler) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.service.ListSites(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "failed to list sites", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]siteDTO, 0, len(sites))
	for _, site := range sites {
		payload = append(payload, toSiteDTO(site))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *SiteHandler) Get(w http.ResponseWriter, r *http.Request) {
	siteID, ok := PathIDFromContext(r.Context())
	if !ok || siteID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a site id is required"))
		return
	}

	site, err := h.service.GetSite(r.Context(), siteID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSiteDTO(site))
}

func (h *SiteHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	site, err := h.service.CreateSite(r.Context(), application.CreateSiteParams{
		Principal: principal,
		Input:     application.SiteInput{Name: req.Name, ParentID: req.ParentID},
	})
	if err != nil {
		h.log(r.Context(), "Create").ErrorContext(r.Context(), "failed to create site", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "site_id", site.ID).InfoContext(r.Context(), "site created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSiteDTO(site))
}

func (h *SiteHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	siteID, ok := PathIDFromContext(r.Context())
	if !ok || siteID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a site id is required"))
		return
	}

	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	site, err := h.service.UpdateSite(r.Context(), application.UpdateSiteParams{
		Principal: principal,
		SiteID:    siteID,
		Input:     application.SiteInput{Name: req.Name},
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSiteDTO(site))
}

func (h *SiteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	siteID, ok := PathIDFromContext(r.Context())
	if !ok || siteID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a site id is required"))
		return
	}

	if err := h.service.DeleteSite(r.Context(), principal, siteID); err != nil {
		h.log(r.Context(), "Delete", "site_id", siteID).ErrorContext(r.Context(), "failed to delete site", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SiteHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	siteID, ok := PathIDFromContext(r.Context())
	if !ok || siteID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a site id is required"))
		return
	}

	items, err := h.service.ListChecklistItems(r.Context(), siteID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]checklistItemDTO, 0, len(items))
	for _, item := range items {
		payload = append(payload, toChecklistItemDTO(item))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *SiteHandler) AddCheck(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	siteID, ok := PathIDFromContext(r.Context())
	if !ok || siteID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a site id is required"))
		return
	}

	var req checklistItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	item, err := h.service.AddChecklistItem(r.Context(), application.AddChecklistItemParams{
		Principal: principal,
		SiteID:    siteID,
		Input: application.ChecklistItemInput{
			Text:        req.Text,
			Description: req.Description,
			ImageIDs:    req.ImageIDs,
		},
	})
	if err != nil {
		h.log(r.Context(), "AddCheck", "site_id", siteID).ErrorContext(r.Context(), "failed to add checklist item", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toChecklistItemDTO(item))
}

func (h *SiteHandler) RemoveCheck(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	checkID, ok := PathIDFromContext(r.Context())
	if !ok || checkID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a checklist item id is required"))
		return
	}

	if err := h.service.RemoveChecklistItem(r.Context(), principal, checkID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type siteRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

type siteDTO struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Level    int      `json:"level"`
	ParentID *string  `json:"parent_id,omitempty"`
	ChildIDs []string `json:"child_ids,omitempty"`
	CheckIDs []string `json:"check_ids,omitempty"`
}

func toSiteDTO(site application.Site) siteDTO {
	return siteDTO{
		ID:       site.ID,
		Name:     site.Name,
		Level:    site.Level,
		ParentID: site.ParentID,
		ChildIDs: site.ChildIDs,
		CheckIDs: site.CheckIDs,
	}
}

type checklistItemRequest struct {
	Text        string   `json:"text"`
	Description string   `json:"description,omitempty"`
	ImageIDs    []string `json:"image_ids,omitempty"`
}

type checklistItemDTO struct {
	ID          string   `json:"id"`
	SiteID      string   `json:"site_id"`
	Text        string   `json:"text"`
	Description string   `json:"description,omitempty"`
	ImageIDs    []string `json:"image_ids,omitempty"`
}

func toChecklistItemDTO(item application.ChecklistItem) checklistItemDTO {
	return checklistItemDTO{
		ID:          item.ID,
		SiteID:      item.SiteID,
		Text:        item.Text,
		Description: item.Description,
		ImageIDs:    item.ImageIDs,
	}
}
