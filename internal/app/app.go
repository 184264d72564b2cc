package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/silvernonstop/auditapi/internal/adapters/alert"
	"github.com/silvernonstop/auditapi/internal/adapters/httpapi"
	sqliteadapter "github.com/silvernonstop/auditapi/internal/adapters/sqlite"
	"github.com/silvernonstop/auditapi/internal/adapters/sqlite/gormsqlite"
	"github.com/silvernonstop/auditapi/internal/core/domain"
	"github.com/silvernonstop/auditapi/internal/core/ports"
	"github.com/silvernonstop/auditapi/internal/core/usecase"
	"github.com/silvernonstop/auditapi/migrations"
)

type Config struct {
	Addr               string
	DBPath             string
	BootstrapAPIKey    string
	BootstrapKeyName   string
	AlertWebhookURL    string
	AlertWebhookSecret string
	AlertInterval      time.Duration
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	eventRepo := sqliteadapter.NewAuditEventRepository(db)
	alertRepo := sqliteadapter.NewAlertRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)

	normalizer := usecase.NewNormalizer(usecase.DefaultNormalizerConfig())
	ingestService := usecase.NewIngestService(normalizer, eventRepo, alertRepo)
	auditService := usecase.NewAuditService(eventRepo)
	authService := usecase.NewAuthService(apiKeyRepo)

	var notifier ports.AlertNotifier = alert.NewLogNotifier()
	if cfg.AlertWebhookURL != "" {
		notifier = alert.NewWebhookNotifier(cfg.AlertWebhookURL, cfg.AlertWebhookSecret, 0)
	}
	dispatcher := usecase.NewAlertDispatcher(alertRepo, notifier, cfg.AlertInterval, 100)
	dispatcher.Start(context.Background())

	if cfg.BootstrapAPIKey != "" {
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}

		bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := apiKeyRepo.Upsert(bootstrapCtx, domain.APIKey{
			TokenHash: usecase.HashToken(cfg.BootstrapAPIKey),
			Name:      name,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		bootstrapCancel()
		if err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	handler, err := httpapi.NewHandler(ingestService, auditService, authService)
	if err != nil {
		_ = dispatcher.Close()
		_ = db.Close()
		return nil, nil, err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}
