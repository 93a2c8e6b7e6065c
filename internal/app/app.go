// Package app wires together the scheduler core's packages into the
// three process shapes spec.md §6.3 describes: scheduler, job-worker, and
// web. It is the one place cmd/* code touches construction details, so
// each cmd/*/main.go stays a thin cobra wrapper.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/eykd/companion-memory/clock"
	"github.com/eykd/companion-memory/config"
	"github.com/eykd/companion-memory/cronplanner"
	"github.com/eykd/companion-memory/devstub"
	"github.com/eykd/companion-memory/handlers"
	"github.com/eykd/companion-memory/lock"
	"github.com/eykd/companion-memory/registry"
	"github.com/eykd/companion-memory/report"
	"github.com/eykd/companion-memory/retry"
	"github.com/eykd/companion-memory/scheduling"
	"github.com/eykd/companion-memory/store"
	"github.com/eykd/companion-memory/store/dynamo"
	"github.com/eykd/companion-memory/store/memory"
	"github.com/eykd/companion-memory/worker"
)

// StoreBackend selects which store.Store implementation App builds.
type StoreBackend string

const (
	// BackendMemory builds an in-process store.memory.Store. It does not
	// survive a process restart and is meant for local development and
	// the `--store memory` escape hatch, never production.
	BackendMemory StoreBackend = "memory"
	// BackendDynamo builds a store.dynamo.Store against config.DynamoTable
	// in config.AWSRegion. This is the production backend.
	BackendDynamo StoreBackend = "dynamo"
)

// App holds every wired component a cmd/* binary drives.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Clock     clock.Clock
	Store     store.Store
	Registry  *registry.Registry
	Scheduler *scheduling.Scheduler
	Reporter  report.ErrorReporter
	Retry     *retry.Policy
	Worker    *worker.Worker
	Lock      *lock.SingletonLock
	Cron      *cronplanner.Runner
}

// New loads configuration, builds the backing store for backend, and
// wires the job registry, scheduling API, retry policy, error reporter,
// worker, singleton lock, and cron runner. Every cmd/* binary calls this
// and then drives whichever of the returned components its role needs.
func New(backend StoreBackend) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := report.InitSentry(report.SentryOptions{DSN: cfg.SentryDSN}); err != nil {
		return nil, fmt.Errorf("app: init sentry: %w", err)
	}
	var reporter report.ErrorReporter = report.NopReporter{}
	if cfg.SentryDSN != "" {
		reporter = report.NewSentryReporter()
	}

	var s store.Store
	switch backend {
	case BackendDynamo:
		s, err = dynamo.NewFromRegion(cfg.AWSRegion, cfg.DynamoTable)
		if err != nil {
			return nil, fmt.Errorf("app: build dynamo store: %w", err)
		}
	default:
		s = memory.New()
	}

	reg := registry.New()
	sched := scheduling.New(s, reg)

	deps := handlers.Deps{
		Logs:      devstub.EmptyLogStore{},
		LLM:       devstub.PlaceholderLLMClient{},
		Chat:      devstub.LoggingChatClient{Logger: logger},
		Scheduler: sched,
		Logger:    logger,
	}
	handlers.RegisterAll(reg, deps)

	retryPolicy := retry.New(
		retry.WithBaseDelay(cfg.BaseDelaySeconds),
		retry.WithMaxAttempts(cfg.MaxAttempts),
	)

	w := worker.New(s, registry.NewDispatcher(reg), retryPolicy, logger,
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithBatchLimit(cfg.BatchLimit),
		worker.WithLease(cfg.LeaseSeconds),
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithReporter(reporter),
	)

	singleton := lock.New(s, logger,
		lock.WithTTL(cfg.SingletonTTLSeconds),
		lock.WithRefreshInterval(cfg.SingletonRefreshSeconds),
	)

	settings := devstub.NewStaticUserSettingsStore(cfg.DailySummaryUsers)
	chat := devstub.LoggingChatClient{Logger: logger}

	var planners []cronplanner.Planner
	if cfg.EnableHeartbeat {
		planners = append(planners, cronplanner.NewHeartbeatPlanner(sched, logger))
	}
	planners = append(planners,
		cronplanner.NewDailySummaryPlanner(settings, sched, logger),
		newWorkSamplingPlanner(settings, sched, logger, cfg.WorkSamplingPromptsPerDay),
		cronplanner.NewUserSyncPlanner(settings, chat, logger),
	)

	cron := cronplanner.NewRunner(singleton, logger, planners, cronplanner.WithClock(clock.New()))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Clock:     clock.New(),
		Store:     s,
		Registry:  reg,
		Scheduler: sched,
		Reporter:  reporter,
		Retry:     retryPolicy,
		Worker:    w,
		Lock:      singleton,
		Cron:      cron,
	}, nil
}

func newWorkSamplingPlanner(settings *devstub.StaticUserSettingsStore, sched *scheduling.Scheduler, logger *slog.Logger, promptsPerDay int) *cronplanner.WorkSamplingPlanner {
	p := cronplanner.NewWorkSamplingPlanner(settings, sched, logger)
	if promptsPerDay > 0 {
		p.PromptsPerDay = promptsPerDay
	}
	return p
}
