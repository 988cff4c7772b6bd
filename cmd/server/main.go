package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/api"
	"github.com/edba-platform/edba/internal/app"
	"github.com/edba-platform/edba/internal/app/maintenance"
	iauth "github.com/edba-platform/edba/internal/auth"
	"github.com/edba-platform/edba/internal/database"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/internal/storage"
	"github.com/edba-platform/edba/pkg/logger"
	"github.com/edba-platform/edba/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edba-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}

	store, err := storage.NewFilesystemDocumentStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("initialise document store: %w", err)
	}

	svcs, err := buildServices(db, mailer, cfg)
	if err != nil {
		return err
	}

	cleaner := maintenance.NewCleaner(svcs.Verification, svcs.Audit,
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays))
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(db, jwtService, cfg, svcs, store)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func buildServices(db *gorm.DB, mailer mail.Mailer, cfg *app.Config) (api.Services, error) {
	var svcs api.Services

	audit, err := services.NewAuditService(db)
	if err != nil {
		return svcs, fmt.Errorf("initialise audit service: %w", err)
	}

	var verificationOpts []services.VerificationOption
	if cfg.Verification.CodeLifetime > 0 {
		verificationOpts = append(verificationOpts, services.WithCodeLifetime(cfg.Verification.CodeLifetime))
	}
	if cfg.Verification.CodeLength > 0 {
		verificationOpts = append(verificationOpts, services.WithCodeLength(cfg.Verification.CodeLength))
	}
	verification, err := services.NewVerificationService(db, mailer, audit, verificationOpts...)
	if err != nil {
		return svcs, fmt.Errorf("initialise verification service: %w", err)
	}

	users, err := services.NewUserService(db, verification, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise user service: %w", err)
	}

	approvals, err := services.NewApprovalService(db, verification, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise approval service: %w", err)
	}

	organizations, err := services.NewOrganizationService(db, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise organization service: %w", err)
	}

	bank, err := services.NewBankService(db, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise bank service: %w", err)
	}

	members, err := services.NewMemberService(db, bank, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise member service: %w", err)
	}

	policies, err := services.NewPolicyService(db, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise policy service: %w", err)
	}

	help, err := services.NewHelpService(db, audit)
	if err != nil {
		return svcs, fmt.Errorf("initialise help service: %w", err)
	}

	svcs = api.Services{
		Audit:         audit,
		Verification:  verification,
		Users:         users,
		Approvals:     approvals,
		Organizations: organizations,
		Members:       members,
		Bank:          bank,
		Policies:      policies,
		Help:          help,
	}
	return svcs, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		Options:  cfg.Database.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("acquire database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
