package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"panelmerge/internal/audit"
	audithandler "panelmerge/internal/audit/handler"
	auditmetrics "panelmerge/internal/audit/metrics"
	auditmemory "panelmerge/internal/audit/store/memory"
	auditpostgres "panelmerge/internal/audit/store/postgres"
	"panelmerge/internal/auth"
	authhandler "panelmerge/internal/auth/handler"
	httpapi "panelmerge/internal/http"
	"panelmerge/internal/panel"
	panelhandler "panelmerge/internal/panel/handler"
	"panelmerge/internal/platform/config"
	"panelmerge/internal/platform/httpserver"
	"panelmerge/internal/platform/logger"
	redisplatform "panelmerge/internal/platform/redis"
	"panelmerge/internal/secmon"
	secmonmetrics "panelmerge/internal/secmon/metrics"
	"panelmerge/internal/secmon/tracker"
)

// trackerPruneInterval is how often the in-memory tracker drops state for
// IPs that have gone quiet.
const trackerPruneInterval = 5 * time.Minute

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit store: PostgreSQL when configured, in-memory otherwise.
	var auditStore audit.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		auditStore = auditpostgres.New(db)
		log.Info("audit store: postgresql")
	} else {
		auditStore = auditmemory.New()
		log.Warn("audit store: in-memory, events are not durable")
	}

	auditor, err := audit.NewService(auditStore, log,
		audit.WithMetrics(auditmetrics.New()),
	)
	if err != nil {
		return err
	}

	// Security tracker: Redis when configured, sharded in-memory otherwise.
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	var (
		tr         tracker.Tracker
		memTracker *tracker.Memory
	)
	if redisClient != nil {
		defer redisClient.Close()
		tr = tracker.NewRedis(redisClient.Client)
		log.Info("security tracker: redis")
	} else {
		memTracker = tracker.NewMemory()
		tr = memTracker
		log.Info("security tracker: in-memory")
	}

	monitor := secmon.New(cfg.Security, auditor, tr, log,
		secmon.WithMetrics(secmonmetrics.New()),
	)

	users := auth.NewInMemoryUserStore()
	if cfg.AdminPassword != "" {
		if _, err := users.Seed(cfg.AdminUsername, "Administrator", cfg.AdminPassword, auth.RoleAdmin); err != nil {
			return err
		}
		log.Info("seeded admin user", "username", cfg.AdminUsername)
	} else {
		log.Warn("no admin password configured, no users seeded")
	}

	authService, err := auth.NewService(users, auditor, log, cfg.JWTSigningKey, cfg.SessionTTL)
	if err != nil {
		return err
	}

	panelService, err := panel.NewService(panel.NewInMemoryStore(), auditor, monitor, log)
	if err != nil {
		return err
	}

	deps := httpapi.Deps{
		Auth:         authService,
		Monitor:      monitor,
		AuthHandler:  authhandler.New(authService, monitor, log),
		PanelHandler: panelhandler.New(panelService, log),
		AuditHandler: audithandler.New(auditor, log),
	}
	if redisClient != nil {
		deps.Health = redisClient.Health
	}
	router := httpapi.NewRouter(deps)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting panelmerge", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if memTracker != nil {
		g.Go(func() error {
			ticker := time.NewTicker(trackerPruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					pruned := memTracker.Prune(cfg.Security.FailedLoginWindow)
					if pruned > 0 {
						log.Debug("pruned tracker state", "entries", pruned)
					}
				}
			}
		})
	}

	return g.Wait()
}
