// Command server runs the pilotdesk back office: the HTTP surface and the
// SLA sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/consent"
	"pilotdesk/internal/notify"
	"pilotdesk/internal/pilot"
	"pilotdesk/internal/platform/config"
	"pilotdesk/internal/platform/httpserver"
	"pilotdesk/internal/platform/logger"
	"pilotdesk/internal/platform/metrics"
	"pilotdesk/internal/platform/postgres"
	platformredis "pilotdesk/internal/platform/redis"
	"pilotdesk/internal/request"
	"pilotdesk/internal/sla"
	httpapi "pilotdesk/internal/transport/http"
	"pilotdesk/pkg/platform/middleware/auth"
)

func main() {
	root := &cobra.Command{
		Use:          "pilotdesk",
		Short:        "Back office for pilot requests: lifecycle, audit chains, SLAs",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one SLA overdue sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context())
		},
	}
}

// app holds the wired services and their teardown hooks.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	requests *request.Service
	pilots   *pilot.Provisioner
	tracker  *sla.Tracker
	cleanup  []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func buildApp() (*app, error) {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	a := &app{cfg: cfg, log: log}

	// Stores: in-memory by default, PostgreSQL when a DSN is configured.
	var (
		auditStore   audit.Store
		requestStore request.Store
		requestsRaw  pilot.Requests
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { _ = db.Close() })
		pgRequests := request.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		requestStore = pgRequests
		requestsRaw = pgRequests
		log.Info("using postgres stores")
	} else {
		memRequests := request.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		requestStore = memRequests
		requestsRaw = memRequests
		log.Warn("using in-memory stores; state is lost on restart")
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := audit.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic, log)
		if err != nil {
			return nil, fmt.Errorf("connect audit mirror: %w", err)
		}
		a.cleanup = append(a.cleanup, publisher.Close)
		auditOpts = append(auditOpts, audit.WithMirror(publisher))
		log.Info("audit mirror enabled", "topic", cfg.KafkaAuditTopic)
	}
	auditLog := audit.NewLog(auditStore, auditOpts...)

	dispatcher := notify.NewLogDispatcher(log)

	a.tracker = sla.NewTracker(sla.NewInMemoryStore(),
		sla.WithDispatcher(dispatcher),
		sla.WithAuditor(auditLog),
		sla.WithLogger(log),
		sla.WithMetrics(m),
	)

	requestOpts := []request.Option{
		request.WithDeadlines(a.tracker),
		request.WithConsents(consent.NewService(consent.NewInMemoryStore())),
		request.WithDispatcher(dispatcher),
		request.WithLogger(log),
		request.WithMetrics(m),
		request.WithAgreementLinkTTL(cfg.AgreementLinkTTL),
		request.WithReviewerSLAWindow(cfg.ReviewerSLAWindow),
	}
	if cfg.StrictTransitions {
		requestOpts = append(requestOpts, request.WithTransitionPolicy(request.PolicyStrict))
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		a.cleanup = append(a.cleanup, func() { _ = rdb.Close() })
		requestOpts = append(requestOpts, request.WithTokenIndex(request.NewRedisTokenIndex(rdb.Client)))
		log.Info("using redis agreement token index")
	}

	a.requests = request.NewService(requestStore, auditLog, requestOpts...)

	pilotOpts := []pilot.Option{
		pilot.WithDispatcher(dispatcher),
		pilot.WithLogger(log),
		pilot.WithMetrics(m),
	}
	if cfg.MilestonePlanPath != "" {
		plan, err := pilot.LoadPlan(cfg.MilestonePlanPath)
		if err != nil {
			return nil, fmt.Errorf("load milestone plan: %w", err)
		}
		pilotOpts = append(pilotOpts, pilot.WithPlan(plan))
	}
	a.pilots = pilot.NewProvisioner(pilot.NewInMemoryStore(), requestsRaw, auditLog, pilotOpts...)

	return a, nil
}

func runServe(ctx context.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	router := httpapi.NewRouter(httpapi.Deps{
		Requests: a.requests,
		Pilots:   a.pilots,
		Verifier: auth.NewVerifier(a.cfg.JWTSigningKey),
		Logger:   a.log,
	})
	server := httpserver.New(a.cfg.Addr, router)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func runSweep(ctx context.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	escalated, err := a.tracker.SweepOverdue(ctx)
	if err != nil {
		return err
	}
	a.log.Info("sweep complete", "escalated", len(escalated))
	return nil
}
