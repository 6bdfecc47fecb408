package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotEclipsed/jira-dashboard/config"
	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	"github.com/NotEclipsed/jira-dashboard/internal/logging"
	"github.com/NotEclipsed/jira-dashboard/internal/scanner"
	"github.com/NotEclipsed/jira-dashboard/internal/server"
	"github.com/NotEclipsed/jira-dashboard/internal/store"
	"github.com/NotEclipsed/jira-dashboard/internal/ticket"
)

const (
	retentionInterval = time.Hour
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	userRepo, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sc := scanner.New(scanner.WithEmail(cfg.ScannerEmail))
	if cfg.ScannerPatternFile != "" {
		if err := scanner.WatchPatternFile(ctx, sc, cfg.ScannerPatternFile, log); err != nil {
			return fmt.Errorf("load scanner patterns: %w", err)
		}
	}

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}
	trail, err := audit.NewTrail(audit.Config{
		Dir:       cfg.AuditDir,
		Secret:    []byte(cfg.AuditHMACSecret),
		Retention: time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour,
		Archiver:  archiver,
		Sanitize: func(s string) string {
			return sc.Sanitize(s, scanner.MaskToken)
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer trail.Close()
	trail.StartRetention(ctx, retentionInterval)

	tokenService := service.NewTokenService(cfg.SessionTokenSecret)
	sessions := service.NewSessionRegistry(tokenService, service.RegistryConfig{
		IdleTimeout:     cfg.SessionIdleTimeout,
		AbsoluteTimeout: cfg.SessionAbsoluteTimeout,
		BindIP:          cfg.SessionBindIP,
		Recorder:        trail,
		Logger:          log,
	})
	sessions.StartSweeper(ctx, cfg.SessionSweepInterval)

	userService := service.NewUserService(userRepo, trail, cfg)
	created, err := userService.EnsureDefaultAdmin(ctx, cfg.DefaultAdminUsername, cfg.DefaultAdminEmail, cfg.DefaultAdminPassword)
	switch {
	case err != nil:
		log.Warn(ctx, "default admin not created", "error", err.Error())
	case created:
		log.Info(ctx, "default admin created", "username", cfg.DefaultAdminUsername)
	}

	tracker := ticket.NewClient(ticket.ClientConfig{
		BaseURL:  cfg.JiraBaseURL,
		Email:    cfg.JiraEmail,
		APIToken: cfg.JiraAPIToken,
		Timeout:  cfg.UpstreamTimeout,
		RPS:      cfg.UpstreamRPS,
		Logger:   log,
	})

	app := server.New(server.Deps{
		Config:      cfg,
		Logger:      log,
		Recorder:    trail,
		Users:       userService,
		Sessions:    sessions,
		AuditReader: trail,
		Tracker:     tracker,
		Scanner:     sc,
	})

	trail.Record(ctx, audit.Event{
		Type:    audit.EventSystem,
		Action:  "SERVER_STARTED",
		Result:  audit.ResultSuccess,
		Details: map[string]any{"store": cfg.StoreDriver, "scanner_mode": cfg.ScannerMode},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "port", cfg.Port, "env", cfg.Env)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Warn(context.Background(), "shutdown incomplete", "error", err.Error())
	}
	trail.Record(context.Background(), audit.Event{
		Type:   audit.EventSystem,
		Action: "SERVER_STOPPED",
		Result: audit.ResultSuccess,
	})
	return nil
}

func newArchiver(ctx context.Context, cfg *config.Config) (audit.Archiver, error) {
	switch cfg.AuditArchive {
	case "local":
		return audit.NewLocalArchiver(cfg.AuditArchiveDir), nil
	case "s3":
		client, err := audit.NewS3Client(ctx, audit.S3Options{
			Region:    cfg.AuditArchiveRegion,
			Endpoint:  cfg.AuditArchiveEndpoint,
			AccessKey: cfg.AuditArchiveKey,
			SecretKey: cfg.AuditArchiveSecret,
		})
		if err != nil {
			return nil, err
		}
		return audit.NewS3Archiver(client, cfg.AuditArchiveBucket, cfg.AuditArchivePrefix), nil
	case "none":
		return nil, nil
	default:
		return nil, errors.New("AUDIT_ARCHIVE must be local, s3 or none")
	}
}
