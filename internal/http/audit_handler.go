package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/facility-audit/internal/application"
)

type auditService interface {
	GetAudit(ctx context.Context, auditID string) (application.Audit, error)
	ListAudits(ctx context.Context, principal application.Principal, filter application.AuditListFilter) ([]application.Audit, error)
	StartAudit(ctx context.Context, principal application.Principal, auditID string) (application.Audit, error)
	RecordCheckResult(ctx context.Context, params application.RecordCheckResultParams) (application.Audit, error)
	CompleteAudit(ctx context.Context, principal application.Principal, auditID string) (application.Audit, error)
	DeleteAudit(ctx context.Context, principal application.Principal, auditID string) error
}

type AuditHandler struct {
	service   auditService
	responder responder
	logger    *slog.Logger
}

func NewAuditHandler(service auditService, logger *slog.Logger) *AuditHandler {
	base := defaultLogger(logger)
	return &AuditHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AuditHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuditHandler", operation, attrs...)
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	filter := application.AuditListFilter{
		ParticipantID: r.URL.Query().Get("participant_id"),
		ScheduledOnly: r.URL.Query().Get("scheduled_only") == "true",
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("from must use the YYYY-MM-DD format"))
			return
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("to must use the YYYY-MM-DD format"))
			return
		}
		filter.To = &to
	}

	audits, err := h.service.ListAudits(r.Context(), principal, filter)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "failed to list audits", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]auditDTO, 0, len(audits))
	for _, audit := range audits {
		payload = append(payload, toAuditDTO(audit))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	auditID, ok := PathIDFromContext(r.Context())
	if !ok || auditID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("an audit id is required"))
		return
	}

	audit, err := h.service.GetAudit(r.Context(), auditID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuditDTO(audit))
}

func (h *AuditHandler) Start(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	auditID, ok := PathIDFromContext(r.Context())
	if !ok || auditID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("an audit id is required"))
		return
	}

	audit, err := h.service.StartAudit(r.Context(), principal, auditID)
	if err != nil {
		h.log(r.Context(), "Start", "audit_id", auditID).ErrorContext(r.Context(), "failed to start audit", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Start", "audit_id", auditID).InfoContext(r.Context(), "audit started")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuditDTO(audit))
}

func (h *AuditHandler) RecordResult(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	auditID, ok := PathIDFromContext(r.Context())
	if !ok || auditID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("an audit id is required"))
		return
	}

	var req checkResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	audit, err := h.service.RecordCheckResult(r.Context(), application.RecordCheckResultParams{
		Principal: principal,
		AuditID:   auditID,
		CheckID:   req.CheckID,
		Passed:    req.Passed,
		Comment:   req.Comment,
		ImageID:   req.ImageID,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuditDTO(audit))
}

func (h *AuditHandler) Complete(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	auditID, ok := PathIDFromContext(r.Context())
	if !ok || auditID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("an audit id is required"))
		return
	}

	audit, err := h.service.CompleteAudit(r.Context(), principal, auditID)
	if err != nil {
		h.log(r.Context(), "Complete", "audit_id", auditID).ErrorContext(r.Context(), "failed to complete audit", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Complete", "audit_id", auditID).InfoContext(r.Context(), "audit completed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuditDTO(audit))
}

func (h *AuditHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	auditID, ok := PathIDFromContext(r.Context())
	if !ok || auditID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("an audit id is required"))
		return
	}

	if err := h.service.DeleteAudit(r.Context(), principal, auditID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type checkResultRequest struct {
	CheckID string `json:"check_id"`
	Passed  bool   `json:"passed"`
	Comment string `json:"comment,omitempty"`
	ImageID string `json:"image_id,omitempty"`
}

type checkResultDTO struct {
	CheckID string `json:"check_id"`
	Text    string `json:"text"`
	Passed  *bool  `json:"passed,omitempty"`
	Comment string `json:"comment,omitempty"`
	ImageID string `json:"image_id,omitempty"`
}

type auditDTO struct {
	ID             string           `json:"id"`
	SiteID         string           `json:"site_id"`
	SiteName       string           `json:"site_name"`
	ParticipantIDs []string         `json:"participant_ids"`
	OnDate         string           `json:"on_date"`
	Status         string           `json:"status"`
	StartedAt      string           `json:"started_at,omitempty"`
	CompletedAt    string           `json:"completed_at,omitempty"`
	Results        []checkResultDTO `json:"results"`
}

func toAuditDTO(audit application.Audit) auditDTO {
	dto := auditDTO{
		ID:             audit.ID,
		SiteID:         audit.SiteID,
		SiteName:       audit.SiteName,
		ParticipantIDs: audit.ParticipantIDs,
		OnDate:         audit.OnDate.Format(dateLayout),
		Status:         string(audit.Status()),
	}
	if audit.StartedAt != nil {
		dto.StartedAt = audit.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if audit.CompletedAt != nil {
		dto.CompletedAt = audit.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, result := range audit.Results {
		dto.Results = append(dto.Results, checkResultDTO{
			CheckID: result.CheckID,
			Text:    result.Text,
			Passed:  result.Passed,
			Comment: result.Comment,
			ImageID: result.ImageID,
		})
	}
	return dto
}
