// Package app wires configuration, stores and services into the objects both binaries run.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-notify-engine/internal/application/dispatch"
	"github.com/go-notify-engine/internal/application/notification"
	"github.com/go-notify-engine/internal/application/pushtoken"
	"github.com/go-notify-engine/internal/config"
	jwtinfra "github.com/go-notify-engine/internal/infrastructure/jwt"
	"github.com/go-notify-engine/internal/infrastructure/membercache"
	s3infra "github.com/go-notify-engine/internal/infrastructure/s3"
	"github.com/go-notify-engine/internal/infrastructure/sns"
	"github.com/go-notify-engine/internal/infrastructure/storage"
	"github.com/go-notify-engine/internal/pkg/metrics"
	transporthttp "github.com/go-notify-engine/internal/transport/http"
)

// App is the assembled engine.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Stores   *storage.Stores
	Members  *membercache.Cache

	Notifications notification.Service
	History       notification.HistoryService
	PushTokens    pushtoken.Service
	Dispatcher    *dispatch.Dispatcher
	Trials        *dispatch.TrialScheduler
	// Reports is nil when REPORT_BUCKET is unset.
	Reports *s3infra.ReportArchive
}

// NewLogger returns a text logger in development and a JSON logger elsewhere.
func NewLogger(cfg *config.Config) *slog.Logger {
	if cfg.Debug() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// New opens the configured store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	stores, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return Assemble(ctx, cfg, log, stores)
}

// Assemble builds the services over already opened stores.
func Assemble(ctx context.Context, cfg *config.Config, log *slog.Logger, stores *storage.Stores) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  m,
		Stores:   stores,
		Members:  membercache.New(stores.Members, cfg.MembershipCacheTTL),
	}

	a.Notifications = notification.NewService(notification.ServiceDeps{
		Store:    stores.Notifications,
		Receipts: stores.Receipts,
		Members:  a.Members,
		Metrics:  m,
		Logger:   log.With("component", "notification"),
	})
	a.History = notification.NewHistoryService(stores.Notifications, m)
	a.PushTokens = pushtoken.NewService(stores.Tokens, m, log.With("component", "pushtoken"))
	a.Trials = dispatch.NewTrialScheduler(stores.Notifications, m, log.With("component", "trial"))

	deps := dispatch.Deps{
		Store:          stores.Notifications,
		Tokens:         stores.Tokens,
		Members:        a.Members,
		Metrics:        m,
		Logger:         log.With("component", "dispatcher"),
		Concurrency:    cfg.DispatchConcurrency,
		AttemptTimeout: cfg.DispatchAttemptTimeout,
	}
	if cfg.PushConfigured() {
		client, err := sns.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.Transport = sns.NewTransport(client, cfg.SNSIOSPlatformARN, cfg.SNSAndroidPlatformARN)
	} else {
		log.Warn("no SNS platform application configured, push deliveries are only logged")
	}
	if cfg.ReportBucket != "" {
		a.Reports = s3infra.NewReportArchive(s3infra.NewClient(cfg), cfg.ReportBucket)
		deps.Archive = a.Reports
	}
	a.Dispatcher = dispatch.New(deps)
	return a, nil
}

// Router builds the HTTP handler. provider may be nil, in which case every
// authenticated route answers 401.
func (a *App) Router(provider *jwtinfra.Provider) http.Handler {
	return transporthttp.NewRouter(a.Config, &transporthttp.Deps{
		Notifications: a.Notifications,
		History:       a.History,
		PushTokens:    a.PushTokens,
		Dispatcher:    a.Dispatcher,
		Trials:        a.Trials,
		JWTProvider:   provider,
		Metrics:       promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
	})
}

// DispatchOnce runs a single pass at the current time, for the CLI trigger.
func (a *App) DispatchOnce(ctx context.Context) error {
	report, err := a.Dispatcher.ProcessPending(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	a.Logger.Info("dispatch pass finished", "run_id", report.RunID, "delivered", report.Delivered, "failures", report.Failures)
	return nil
}

func (a *App) Close() error { return a.Stores.Close() }
