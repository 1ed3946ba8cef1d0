package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/facility-audit/internal/application"
	"github.com/example/facility-audit/internal/config"
	httptransport "github.com/example/facility-audit/internal/http"
	"github.com/example/facility-audit/internal/persistence"
	"github.com/example/facility-audit/internal/persistence/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	userStore := persistence.NewUserStore(sqlite.NewUserRepository(pool))
	siteRepo := sqlite.NewSiteRepository(pool)
	siteStore := persistence.NewSiteStore(siteRepo)
	checklistStore := persistence.NewChecklistStore(sqlite.NewChecklistRepository(pool), siteRepo)
	breakStore := persistence.NewBreakStore(sqlite.NewBreakRepository(pool))
	auditStore := persistence.NewAuditStore(sqlite.NewAuditRepository(pool))
	recurringStore := persistence.NewRecurringStore(sqlite.NewRecurringScheduleRepository(pool))
	sessionStore := persistence.NewSessionStore(sqlite.NewSessionRepository(pool))

	notifier := newLogNotifier(logger)

	userService := application.NewUserService(userStore, nil, idGenerator, now)
	siteService := application.NewSiteServiceWithLogger(siteStore, checklistStore, idGenerator, now, logger)
	authService := application.NewAuthServiceWithLogger(userStore, sessionStore, nil, tokenGenerator, now, cfg.SessionTTL, logger)
	plannerService := application.NewPlannerServiceWithLogger(siteStore, checklistStore, auditStore, userStore, breakStore, notifier, idGenerator, now, nil, logger)
	conflictService := application.NewConflictServiceWithLogger(auditStore, userStore, breakStore, logger)
	breakService := application.NewBreakServiceWithLogger(breakStore, conflictService, idGenerator, now, logger)
	auditService := application.NewAuditServiceWithLogger(auditStore, now, logger)
	recurringService := application.NewRecurringServiceWithLogger(recurringStore, plannerService, idGenerator, now, logger)

	if err := seedBootstrapAdmin(context.Background(), cfg, userService, logger); err != nil {
		logger.Error("failed to seed bootstrap admin", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:    httptransport.NewAuthHandler(authService, logger),
		Users:   httptransport.NewUserHandler(userService, logger),
		Sites:   httptransport.NewSiteHandler(siteService, logger),
		Breaks:  httptransport.NewBreakHandler(breakService, logger),
		Audits:  httptransport.NewAuditHandler(auditService, logger),
		Planner: httptransport.NewPlannerHandler(plannerService, recurringService, logger),
	})

	requireSession := httptransport.RequireSession(authService, logger)
	protected := requireSession(router)
	adminOnly := requireSession(httptransport.RequireAdmin(logger)(router))
	handler := httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.EqualFold(r.URL.Path, "/login"):
			router.ServeHTTP(w, r)
		case strings.HasPrefix(r.URL.Path, "/users") || strings.HasPrefix(r.URL.Path, "/audit-plans"):
			adminOnly.ServeHTTP(w, r)
		default:
			protected.ServeHTTP(w, r)
		}
	}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("facility audit API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// seedBootstrapAdmin creates a first admin account when the configuration
// asks for one and no users exist yet.
func seedBootstrapAdmin(ctx context.Context, cfg config.Config, users *application.UserService, logger *slog.Logger) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}

	system := application.Principal{UserID: "bootstrap", Role: application.RoleAdmin}
	existing, err := users.ListUsers(ctx, system)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	admin, err := users.CreateUser(ctx, application.CreateUserParams{
		Principal: system,
		Input: application.UserInput{
			Email:       cfg.BootstrapAdminEmail,
			DisplayName: "Administrator",
			Role:        application.RoleAdmin,
			Password:    cfg.BootstrapAdminPassword,
		},
	})
	if err != nil {
		return err
	}

	logger.Info("seeded bootstrap admin", "user_id", admin.ID, "email", admin.Email)
	return nil
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// logNotifier delivers assignment notifications to the process log. Real
// deployments would swap in a mail or chat transport behind the same port.
type logNotifier struct {
	logger *slog.Logger
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) SendBulkAuditNotifications(ctx context.Context, created []application.CreatedAuditSummary) (application.NotificationReport, error) {
	report := application.NotificationReport{}
	for _, summary := range created {
		for _, participantID := range summary.ParticipantIDs {
			n.logger.InfoContext(ctx, "audit assignment notification",
				"user_id", participantID,
				"audit_id", summary.AuditID,
				"site_name", summary.SiteName,
				"date", summary.Date.Format("2006-01-02"),
				"check_count", summary.CheckCount,
			)
			report.TotalSent++
		}
	}
	return report, nil
}
