package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/psycle-labs/psycle/internal/api"
	"github.com/psycle-labs/psycle/internal/app/experiment"
	"github.com/psycle-labs/psycle/internal/app/league"
	"github.com/psycle-labs/psycle/internal/app/quest"
	"github.com/psycle-labs/psycle/internal/app/streak"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/psycle-labs/psycle/internal/health"
	"github.com/psycle-labs/psycle/internal/infra/metrics"
	"github.com/psycle-labs/psycle/internal/infra/postgres"
	"github.com/psycle-labs/psycle/internal/infra/scheduler"
	"github.com/psycle-labs/psycle/internal/infra/sqlite"
)

// Daemon owns the engine's state, services and HTTP server.
type Daemon struct {
	cfg     Config
	db      *sqlite.DB
	pg      *postgres.Store
	server  *api.Server
	checker *health.Checker
	retry   *scheduler.RetryQueue
	logger  *log.Logger

	Quests      *quest.Service
	Streaks     *streak.Service
	Leagues     *league.Service
	Experiments *experiment.Service
}

// New creates a daemon from the on-disk config.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a daemon, opening the state database and wiring
// every service.
func NewWithConfig(cfg Config) (*Daemon, error) {
	logger := log.New(log.Writer(), "[daemon] ", log.LstdFlags)

	db, err := sqlite.Open(cfg.Engine.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	d := &Daemon{cfg: cfg, db: db, logger: logger}

	var sink domain.EventSink = domain.NopSink{}
	if cfg.Telemetry.Prometheus {
		sink = metrics.Sink{}
	}

	// The local database is always the fallback ranking authority. Postgres
	// is preferred when configured, so multiple engines share one ladder.
	var ranking domain.RankingStore = db
	if cfg.Ranking.Driver == "postgres" {
		pg, err := postgres.Open(cfg.Ranking.PostgresURL)
		if err != nil {
			logger.Printf("postgres ranking unavailable, using local store: %v", err)
		} else {
			d.pg = pg
			ranking = pg
		}
	}

	d.Quests = quest.NewService(db, sink, quest.BoostConfig{
		DurationMinutes: cfg.Boost.DurationMinutes,
		Multiplier:      cfg.Boost.Multiplier,
		MaxBonusXP:      cfg.Boost.MaxBonusXP,
	})
	d.Streaks = streak.NewService(db, sink, streak.FreezeConfig{
		WeeklyRefill: cfg.Freeze.WeeklyRefill,
		MaxCap:       cfg.Freeze.MaxCap,
	})
	d.Leagues = league.NewService(ranking, sink, league.MatchConfig{
		LeagueSize:            cfg.League.Size,
		GapWeight:             cfg.League.GapWeight,
		VarianceWeight:        cfg.League.VarianceWeight,
		MinMembersForVariance: cfg.League.MinMembersForVariance,
	})
	d.Experiments = experiment.NewService(db, sink, loadExperiments(logger))

	d.checker = health.NewChecker(db, cfg.Engine.DataDir)
	if d.pg != nil {
		d.checker.AddCheck("ranking", func(context.Context) error { return d.pg.Ping() })
	}
	d.retry = scheduler.NewRetryQueue(scheduler.DefaultRetryConfig())

	d.server = api.NewServer(cfg.Engine.UserID, d.Quests, d.Streaks, d.Leagues, d.Experiments)
	d.server.SetHealthChecker(d.checker)
	d.server.SetRetryQueue(d.retry)
	if cfg.Telemetry.Prometheus {
		d.server.EnableMetrics()
	}

	return d, nil
}

// Serve runs the HTTP API until the context is cancelled or a shutdown
// signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", d.cfg.API.Host, d.cfg.API.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: d.server.Handler(),
	}

	runCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()
	go d.checker.Run(runCtx)
	go d.retry.Run(runCtx)

	errCh := make(chan error, 1)
	go func() {
		d.logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		d.logger.Printf("received %s, shutting down", sig)
	case <-ctx.Done():
		d.logger.Printf("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases the daemon's resources.
func (d *Daemon) Close() error {
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.logger.Printf("close postgres: %v", err)
		}
	}
	return d.db.Close()
}

// Config returns the daemon's effective configuration.
func (d *Daemon) Config() Config { return d.cfg }

// loadExperiments reads ~/.psycle/experiments.json. No file means no
// experiments, which is the common case.
func loadExperiments(logger *log.Logger) []domain.ExperimentDefinition {
	path := filepath.Join(psycleHome(), "experiments.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var defs []domain.ExperimentDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		logger.Printf("ignoring malformed %s: %v", path, err)
		return nil
	}
	return defs
}
