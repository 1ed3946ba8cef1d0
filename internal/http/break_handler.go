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

type breakService interface {
	CreateBreak(ctx context.Context, params application.CreateBreakParams) (application.Break, application.ConflictResolution, error)
	UpdateBreak(ctx context.Context, params application.UpdateBreakParams) (application.Break, application.ConflictResolution, error)
	DeleteBreak(ctx context.Context, principal application.Principal, breakID string) error
	ListBreaks(ctx context.Context, principal application.Principal, userID string) ([]application.Break, error)
}

type BreakHandler struct {
	service   breakService
	responder responder
	logger    *slog.Logger
}

func NewBreakHandler(service breakService, logger *slog.Logger) *BreakHandler {
	base := defaultLogger(logger)
	return &BreakHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BreakHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BreakHandler", operation, attrs...)
}

func (h *BreakHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	breaks, err := h.service.ListBreaks(r.Context(), principal, r.URL.Query().Get("user_id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]breakDTO, 0, len(breaks))
	for _, record := range breaks {
		payload = append(payload, toBreakDTO(record))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *BreakHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	var req breakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	record, resolution, err := h.service.CreateBreak(r.Context(), application.CreateBreakParams{
		Principal: principal,
		Input:     input,
	})
	if err != nil {
		h.log(r.Context(), "Create").ErrorContext(r.Context(), "failed to create break", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "break_id", record.ID).InfoContext(r.Context(), "break created",
		"resolved", resolution.Resolved, "failed", resolution.Failed)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, breakResponse{
		Break:      toBreakDTO(record),
		Resolution: toResolutionDTO(resolution),
	})
}

func (h *BreakHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	breakID, ok := PathIDFromContext(r.Context())
	if !ok || breakID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a break id is required"))
		return
	}

	var req breakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	record, resolution, err := h.service.UpdateBreak(r.Context(), application.UpdateBreakParams{
		Principal: principal,
		BreakID:   breakID,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, breakResponse{
		Break:      toBreakDTO(record),
		Resolution: toResolutionDTO(resolution),
	})
}

func (h *BreakHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	breakID, ok := PathIDFromContext(r.Context())
	if !ok || breakID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a break id is required"))
		return
	}

	if err := h.service.DeleteBreak(r.Context(), principal, breakID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

const dateLayout = "2006-01-02"

type breakRequest struct {
	UserID    string `json:"user_id,omitempty"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

func (req breakRequest) toInput() (application.BreakInput, error) {
	input := application.BreakInput{UserID: req.UserID}

	if req.StartDate != "" {
		start, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return application.BreakInput{}, errors.New("start_date must use the YYYY-MM-DD format")
		}
		input.StartDate = start
	}
	if req.EndDate != "" {
		end, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return application.BreakInput{}, errors.New("end_date must use the YYYY-MM-DD format")
		}
		input.EndDate = end
	}
	return input, nil
}

type breakDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func toBreakDTO(record application.Break) breakDTO {
	return breakDTO{
		ID:        record.ID,
		UserID:    record.UserID,
		StartDate: record.StartDate.Format(dateLayout),
		EndDate:   record.EndDate.Format(dateLayout),
	}
}

type resolutionDTO struct {
	Resolved int      `json:"resolved"`
	Failed   int      `json:"failed"`
	Logs     []string `json:"logs,omitempty"`
}

func toResolutionDTO(resolution application.ConflictResolution) resolutionDTO {
	return resolutionDTO{
		Resolved: resolution.Resolved,
		Failed:   resolution.Failed,
		Logs:     resolution.Logs,
	}
}

type breakResponse struct {
	Break      breakDTO      `json:"break"`
	Resolution resolutionDTO `json:"resolution"`
}
