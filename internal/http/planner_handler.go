package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/facility-audit/internal/application"
	"github.com/example/facility-audit/internal/scheduling"
)

type plannerService interface {
	GeneratePreview(ctx context.Context, params application.PlanParams) (application.PreviewResult, error)
	CommitPreviews(ctx context.Context, previews []application.AuditPreview) (application.CommitResult, error)
	ScheduleAudits(ctx context.Context, params application.PlanParams) (application.ScheduleResult, error)
}

type recurringService interface {
	GenerateRecurringAudits(ctx context.Context) (application.RecurringRunResult, error)
	CreateRecurringSchedule(ctx context.Context, params application.CreateRecurringScheduleParams) (application.RecurringSchedule, error)
	SetRecurringScheduleActive(ctx context.Context, principal application.Principal, scheduleID string, active bool) (application.RecurringSchedule, error)
	ListRecurringSchedules(ctx context.Context, principal application.Principal, activeOnly bool) ([]application.RecurringSchedule, error)
	DeleteRecurringSchedule(ctx context.Context, principal application.Principal, scheduleID string) error
	LastRunReport() (application.RecurringRunResult, bool)
}

type PlannerHandler struct {
	planner   plannerService
	recurring recurringService
	responder responder
	logger    *slog.Logger
}

func NewPlannerHandler(planner plannerService, recurring recurringService, logger *slog.Logger) *PlannerHandler {
	base := defaultLogger(logger)
	return &PlannerHandler{planner: planner, recurring: recurring, responder: newResponder(base), logger: base}
}

func (h *PlannerHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "PlannerHandler", operation, attrs...)
}

// Preview generates planned assignments without writing anything.
func (h *PlannerHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.planner.GeneratePreview(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "Preview").ErrorContext(r.Context(), "failed to generate preview", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := previewResponse{Conflicts: result.Conflicts}
	for _, preview := range result.Previews {
		payload.Previews = append(payload.Previews, toPreviewDTO(preview))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

// Commit persists previously previewed assignments.
func (h *PlannerHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	previews := make([]application.AuditPreview, 0, len(req.Previews))
	for _, dto := range req.Previews {
		preview, err := dto.toPreview()
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
			return
		}
		previews = append(previews, preview)
	}

	result, err := h.planner.CommitPreviews(r.Context(), previews)
	if err != nil {
		h.log(r.Context(), "Commit").ErrorContext(r.Context(), "failed to commit previews", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Commit").InfoContext(r.Context(), "previews committed",
		"created", result.AuditsCreated, "skipped", result.AuditsSkipped)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, commitResponse{
		AuditsCreated: result.AuditsCreated,
		AuditsSkipped: result.AuditsSkipped,
		Conflicts:     result.Conflicts,
	})
}

// Schedule runs preview and commit in one request.
func (h *PlannerHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.planner.ScheduleAudits(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "Schedule").ErrorContext(r.Context(), "failed to schedule audits", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, scheduleResponse{
		Success:       result.Success,
		AuditsCreated: result.AuditsCreated,
		AuditsSkipped: result.AuditsSkipped,
		Conflicts:     result.Conflicts,
	})
}

// RunRecurring executes one pass of the recurring driver.
func (h *PlannerHandler) RunRecurring(w http.ResponseWriter, r *http.Request) {
	result, err := h.recurring.GenerateRecurringAudits(r.Context())
	if err != nil {
		h.log(r.Context(), "RunRecurring").ErrorContext(r.Context(), "recurring run failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRunReportDTO(result))
}

// LastRun returns the cached report of the most recent driver pass.
func (h *PlannerHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	report, ok := h.recurring.LastRunReport()
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errors.New("no recurring run has been recorded yet"))
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRunReportDTO(report))
}

func (h *PlannerHandler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	schedules, err := h.recurring.ListRecurringSchedules(r.Context(), principal, r.URL.Query().Get("active") == "true")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]recurringScheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		payload = append(payload, toRecurringScheduleDTO(schedule))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *PlannerHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	var req recurringScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	schedule, err := h.recurring.CreateRecurringSchedule(r.Context(), application.CreateRecurringScheduleParams{
		Principal: principal,
		Input: application.RecurringScheduleInput{
			Name:             req.Name,
			SiteIDs:          req.SiteIDs,
			Frequency:        scheduling.Frequency(req.Frequency),
			AuditorPool:      req.AuditorPool,
			AuditorsPerAudit: req.AuditorsPerAudit,
			MaxAuditsPerDay:  req.MaxAuditsPerDay,
			Active:           req.Active,
		},
	})
	if err != nil {
		h.log(r.Context(), "CreateRecurring").ErrorContext(r.Context(), "failed to create recurring schedule", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRecurringScheduleDTO(schedule))
}

func (h *PlannerHandler) UpdateRecurring(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a schedule id is required"))
		return
	}

	var req recurringPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if req.Active == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("the active field is required"))
		return
	}

	schedule, err := h.recurring.SetRecurringScheduleActive(r.Context(), principal, scheduleID, *req.Active)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecurringScheduleDTO(schedule))
}

func (h *PlannerHandler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("a schedule id is required"))
		return
	}

	if err := h.recurring.DeleteRecurringSchedule(r.Context(), principal, scheduleID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type planRequest struct {
	SiteIDs          []string `json:"site_ids"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	Frequency        string   `json:"frequency"`
	AuditorPool      []string `json:"auditor_pool,omitempty"`
	AuditorsPerAudit int      `json:"auditors_per_audit"`
	MaxAuditsPerDay  int      `json:"max_audits_per_day,omitempty"`
}

func (req planRequest) toParams() (application.PlanParams, error) {
	params := application.PlanParams{
		SiteIDs:          req.SiteIDs,
		Frequency:        scheduling.Frequency(req.Frequency),
		AuditorPool:      req.AuditorPool,
		AuditorsPerAudit: req.AuditorsPerAudit,
		MaxAuditsPerDay:  req.MaxAuditsPerDay,
	}
	if req.StartDate != "" {
		start, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return application.PlanParams{}, errors.New("start_date must use the YYYY-MM-DD format")
		}
		params.StartDate = start
	}
	if req.EndDate != "" {
		end, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return application.PlanParams{}, errors.New("end_date must use the YYYY-MM-DD format")
		}
		params.EndDate = end
	}
	return params, nil
}

type auditorDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type previewDTO struct {
	SiteID   string       `json:"site_id"`
	SiteName string       `json:"site_name"`
	Date     string       `json:"date"`
	Auditors []auditorDTO `json:"auditors"`
}

func toPreviewDTO(preview application.AuditPreview) previewDTO {
	dto := previewDTO{
		SiteID:   preview.SiteID,
		SiteName: preview.SiteName,
		Date:     preview.Date.Format(dateLayout),
	}
	for _, auditor := range preview.Auditors {
		dto.Auditors = append(dto.Auditors, auditorDTO{ID: auditor.ID, Name: auditor.Name})
	}
	return dto
}

func (dto previewDTO) toPreview() (application.AuditPreview, error) {
	date, err := time.Parse(dateLayout, dto.Date)
	if err != nil {
		return application.AuditPreview{}, errors.New("preview date must use the YYYY-MM-DD format")
	}
	preview := application.AuditPreview{
		SiteID:   dto.SiteID,
		SiteName: dto.SiteName,
		Date:     date,
	}
	for _, auditor := range dto.Auditors {
		preview.Auditors = append(preview.Auditors, application.AuditorSummary{ID: auditor.ID, Name: auditor.Name})
	}
	return preview, nil
}

type previewResponse struct {
	Previews  []previewDTO `json:"previews"`
	Conflicts []string     `json:"conflicts,omitempty"`
}

type commitRequest struct {
	Previews []previewDTO `json:"previews"`
}

type commitResponse struct {
	AuditsCreated int      `json:"audits_created"`
	AuditsSkipped int      `json:"audits_skipped"`
	Conflicts     []string `json:"conflicts,omitempty"`
}

type scheduleResponse struct {
	Success       bool     `json:"success"`
	AuditsCreated int      `json:"audits_created"`
	AuditsSkipped int      `json:"audits_skipped"`
	Conflicts     []string `json:"conflicts,omitempty"`
}

type recurringScheduleRequest struct {
	Name             string   `json:"name"`
	SiteIDs          []string `json:"site_ids"`
	Frequency        string   `json:"frequency"`
	AuditorPool      []string `json:"auditor_pool,omitempty"`
	AuditorsPerAudit int      `json:"auditors_per_audit"`
	MaxAuditsPerDay  int      `json:"max_audits_per_day,omitempty"`
	Active           bool     `json:"active"`
}

type recurringPatchRequest struct {
	Active *bool `json:"active"`
}

type recurringScheduleDTO struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	SiteIDs           []string `json:"site_ids"`
	Frequency         string   `json:"frequency"`
	AuditorPool       []string `json:"auditor_pool,omitempty"`
	AuditorsPerAudit  int      `json:"auditors_per_audit"`
	MaxAuditsPerDay   int      `json:"max_audits_per_day,omitempty"`
	Active            bool     `json:"active"`
	LastGeneratedDate string   `json:"last_generated_date,omitempty"`
}

func toRecurringScheduleDTO(schedule application.RecurringSchedule) recurringScheduleDTO {
	dto := recurringScheduleDTO{
		ID:               schedule.ID,
		Name:             schedule.Name,
		SiteIDs:          schedule.SiteIDs,
		Frequency:        string(schedule.Frequency),
		AuditorPool:      schedule.AuditorPool,
		AuditorsPerAudit: schedule.AuditorsPerAudit,
		MaxAuditsPerDay:  schedule.MaxAuditsPerDay,
		Active:           schedule.Active,
	}
	if schedule.LastGeneratedDate != nil {
		dto.LastGeneratedDate = schedule.LastGeneratedDate.Format(dateLayout)
	}
	return dto
}

type runReportDTO struct {
	RunID         string   `json:"run_id"`
	RanAt         string   `json:"ran_at"`
	Processed     int      `json:"processed"`
	AuditsCreated int      `json:"audits_created"`
	Conflicts     []string `json:"conflicts,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

func toRunReportDTO(report application.RecurringRunResult) runReportDTO {
	return runReportDTO{
		RunID:         report.RunID,
		RanAt:         report.RanAt.UTC().Format(time.RFC3339Nano),
		Processed:     report.Processed,
		AuditsCreated: report.AuditsCreated,
		Conflicts:     report.Conflicts,
		Errors:        report.Errors,
	}
}
