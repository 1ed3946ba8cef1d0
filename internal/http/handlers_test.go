package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/facility-audit/internal/application"
)

type stubAuthService struct {
	result       application.AuthenticateResult
	err          error
	revokedToken string
}

func (s *stubAuthService) Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error) {
	if s.err != nil {
		return application.AuthenticateResult{}, s.err
	}
	return s.result, nil
}

func (s *stubAuthService) RevokeSession(ctx context.Context, token string) error {
	s.revokedToken = token
	return nil
}

type stubAuditService struct {
	audit application.Audit
	err   error
}

func (s *stubAuditService) GetAudit(ctx context.Context, auditID string) (application.Audit, error) {
	return s.audit, s.err
}

func (s *stubAuditService) ListAudits(ctx context.Context, principal application.Principal, filter application.AuditListFilter) ([]application.Audit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []application.Audit{s.audit}, nil
}

func (s *stubAuditService) StartAudit(ctx context.Context, principal application.Principal, auditID string) (application.Audit, error) {
	return s.audit, s.err
}

func (s *stubAuditService) RecordCheckResult(ctx context.Context, params application.RecordCheckResultParams) (application.Audit, error) {
	return s.audit, s.err
}

func (s *stubAuditService) CompleteAudit(ctx context.Context, principal application.Principal, auditID string) (application.Audit, error) {
	return s.audit, s.err
}

func (s *stubAuditService) DeleteAudit(ctx context.Context, principal application.Principal, auditID string) error {
	return s.err
}

type stubBreakService struct {
	record     application.Break
	resolution application.ConflictResolution
	err        error
}

func (s *stubBreakService) CreateBreak(ctx context.Context, params application.CreateBreakParams) (application.Break, application.ConflictResolution, error) {
	if s.err != nil {
		return application.Break{}, application.ConflictResolution{}, s.err
	}
	return s.record, s.resolution, nil
}

func (s *stubBreakService) UpdateBreak(ctx context.Context, params application.UpdateBreakParams) (application.Break, application.ConflictResolution, error) {
	if s.err != nil {
		return application.Break{}, application.ConflictResolution{}, s.err
	}
	return s.record, s.resolution, nil
}

func (s *stubBreakService) DeleteBreak(ctx context.Context, principal application.Principal, breakID string) error {
	return s.err
}

func (s *stubBreakService) ListBreaks(ctx context.Context, principal application.Principal, userID string) ([]application.Break, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []application.Break{s.record}, nil
}

func withPrincipal(principal application.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func TestLogin_IssuesSessionTokenAndCookie(t *testing.T) {
	t.Parallel()

	expires := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	service := &stubAuthService{result: application.AuthenticateResult{
		User: application.User{ID: "user-1", Email: "alice@example.com", Role: application.RoleAdmin},
		Session: application.Session{
			ID:        "session-1",
			UserID:    "user-1",
			Token:     "token-1",
			ExpiresAt: expires,
		},
	}}
	handler := NewAuthHandler(service, nil)

	body := bytes.NewBufferString(`{"email":"Alice@Example.com","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	recorder := httptest.NewRecorder()
	handler.Login(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", recorder.Code)
	}
	if got := recorder.Header().Get("X-Session-Token"); got != "token-1" {
		t.Fatalf("X-Session-Token = %q, want %q", got, "token-1")
	}

	var sessionCookie *http.Cookie
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "session_token" {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil || sessionCookie.Value != "token-1" {
		t.Fatalf("session_token cookie = %+v, want value %q", sessionCookie, "token-1")
	}
	if !sessionCookie.HttpOnly {
		t.Fatal("session cookie must be http-only")
	}

	var payload loginResponse
	decodeBody(t, recorder, &payload)
	if payload.Token != "token-1" {
		t.Fatalf("token = %q, want %q", payload.Token, "token-1")
	}
	if payload.Principal.UserID != "user-1" || payload.Principal.Role != "admin" {
		t.Fatalf("principal = %+v, want user-1/admin", payload.Principal)
	}
}

func TestLogin_RejectsInvalidCredentials(t *testing.T) {
	t.Parallel()

	service := &stubAuthService{err: application.ErrInvalidCredentials}
	handler := NewAuthHandler(service, nil)

	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"wrong"}`)
	recorder := httptest.NewRecorder()
	handler.Login(recorder, httptest.NewRequest(http.MethodPost, "/login", body))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
	var payload errorResponse
	decodeBody(t, recorder, &payload)
	if payload.ErrorCode != "AUTH_INVALID_CREDENTIALS" {
		t.Fatalf("error_code = %q, want AUTH_INVALID_CREDENTIALS", payload.ErrorCode)
	}
}

func TestLogout_RevokesBearerToken(t *testing.T) {
	t.Parallel()

	service := &stubAuthService{}
	handler := NewAuthHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer token-9")
	recorder := httptest.NewRecorder()
	handler.Logout(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", recorder.Code)
	}
	if service.revokedToken != "token-9" {
		t.Fatalf("revoked token = %q, want %q", service.revokedToken, "token-9")
	}
}

func TestRouter_ExtractsAuditPathID(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	service := &stubAuditService{audit: application.Audit{
		ID:             "audit-1",
		SiteID:         "site-a",
		SiteName:       "Boiler Room",
		ParticipantIDs: []string{"user-1"},
		OnDate:         time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		StartedAt:      &started,
	}}
	router := NewRouter(RouterConfig{
		Audits: NewAuditHandler(service, nil),
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{UserID: "user-1", Role: application.RoleAuditor}),
		},
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/audits/audit-1", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", recorder.Code, recorder.Body.String())
	}
	var payload auditDTO
	decodeBody(t, recorder, &payload)
	if payload.ID != "audit-1" || payload.Status != "in_progress" {
		t.Fatalf("audit = %+v, want id audit-1 in_progress", payload)
	}
	if payload.OnDate != "2025-06-02" {
		t.Fatalf("on_date = %q, want 2025-06-02", payload.OnDate)
	}
}

func TestRouter_MapsNotFoundErrors(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		Audits: NewAuditHandler(&stubAuditService{err: application.ErrNotFound}, nil),
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{UserID: "user-1", Role: application.RoleAuditor}),
		},
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/audits/missing", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestRouter_MapsForbiddenErrors(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		Audits: NewAuditHandler(&stubAuditService{err: application.ErrUnauthorized}, nil),
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{UserID: "user-1", Role: application.RoleAuditor}),
		},
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/audits/audit-1", nil))

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
	var payload errorResponse
	decodeBody(t, recorder, &payload)
	if payload.ErrorCode != "AUTH_FORBIDDEN" {
		t.Fatalf("error_code = %q, want AUTH_FORBIDDEN", payload.ErrorCode)
	}
}

func TestRouter_RejectsUnsupportedMethods(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		Audits: NewAuditHandler(&stubAuditService{}, nil),
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPut, "/audits", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
	if allow := recorder.Header().Get("Allow"); !strings.Contains(allow, http.MethodGet) {
		t.Fatalf("Allow = %q, want it to list GET", allow)
	}
}

func TestCreateBreak_ReturnsResolutionReport(t *testing.T) {
	t.Parallel()

	service := &stubBreakService{
		record: application.Break{
			ID:        "break-1",
			UserID:    "user-1",
			StartDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		},
		resolution: application.ConflictResolution{
			Resolved: 1,
			Logs:     []string{"resolved: audit audit-1 at Boiler Room on 2025-06-02 reassigned from user-1 to user-3"},
		},
	}
	router := NewRouter(RouterConfig{
		Breaks: NewBreakHandler(service, nil),
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{UserID: "user-1", Role: application.RoleAuditor}),
		},
	})

	body := bytes.NewBufferString(`{"start_date":"2025-06-02","end_date":"2025-06-04"}`)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/breaks", body))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", recorder.Code, recorder.Body.String())
	}
	var payload breakResponse
	decodeBody(t, recorder, &payload)
	if payload.Break.ID != "break-1" || payload.Break.EndDate != "2025-06-04" {
		t.Fatalf("break = %+v, want break-1 ending 2025-06-04", payload.Break)
	}
	if payload.Resolution.Resolved != 1 || len(payload.Resolution.Logs) != 1 {
		t.Fatalf("resolution = %+v, want one resolved entry with a log line", payload.Resolution)
	}
}

func TestCreateBreak_MapsValidationErrors(t *testing.T) {
	t.Parallel()

	service := &stubBreakService{err: &application.ValidationError{
		FieldErrors: map[string]string{"end_date": "end date must not be before the start date"},
	}}
	router := NewRouter(RouterConfig{
		Breaks: NewBreakHandler(service, nil),
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{UserID: "user-1", Role: application.RoleAuditor}),
		},
	})

	body := bytes.NewBufferString(`{"start_date":"2025-06-04","end_date":"2025-06-02"}`)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/breaks", body))

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
	var payload errorResponse
	decodeBody(t, recorder, &payload)
	if payload.Errors["end_date"] == "" {
		t.Fatalf("errors = %+v, want an end_date entry", payload.Errors)
	}
}

func TestCreateBreak_RejectsMalformedDates(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		Breaks: NewBreakHandler(&stubBreakService{}, nil),
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{UserID: "user-1", Role: application.RoleAuditor}),
		},
	})

	body := bytes.NewBufferString(`{"start_date":"June 2nd"}`)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/breaks", body))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}
