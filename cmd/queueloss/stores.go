package main

import (
	"context"
	"fmt"
	"time"

	"queueloss/internal/config"
	"queueloss/internal/engine"
	"queueloss/internal/ingestion"
	"queueloss/internal/ledger"
	"queueloss/internal/loss"
	"queueloss/internal/orchestrator"
	"queueloss/internal/reporting"
	"queueloss/internal/storage"
	chstore "queueloss/internal/storage/clickhouse"
	"queueloss/internal/storage/memory"
	"queueloss/internal/storage/migrations"
	pgstore "queueloss/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	measurements storage.MeasurementStore
	actions      storage.ActionStore
	entries      storage.RoiEntryStore
	insights     storage.InsightStore
	snapshots    storage.LossSnapshotStore
	progress     storage.RunProgressStore
}

// openStores creates the configured stores. Postgres holds measurements,
// actions, the ledger and run progress; ClickHouse holds the per-day analytics.
func openStores(ctx context.Context, cfg config.StorageConfig) (*allStores, func(), error) {
	if cfg.Backend == config.BackendMemory {
		return &allStores{
			measurements: memory.NewMeasurementStore(),
			actions:      memory.NewActionStore(),
			entries:      memory.NewRoiEntryStore(),
			insights:     memory.NewInsightStore(),
			snapshots:    memory.NewLossSnapshotStore(),
			progress:     memory.NewRunProgressStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	cleanup := func() {
		conn.Close()
		pool.Close()
	}

	if cfg.Migrate {
		if _, err := migrations.ApplyPostgres(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if _, err := migrations.ApplyClickhouse(ctx, conn); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
	}

	stores := &allStores{
		measurements: pgstore.NewMeasurementStore(pool),
		actions:      pgstore.NewActionStore(pool),
		entries:      pgstore.NewRoiEntryStore(pool),
		progress:     pgstore.NewRunProgressStore(pool),

		insights:  chstore.NewInsightStore(conn),
		snapshots: chstore.NewLossSnapshotStore(conn),
	}
	return stores, cleanup, nil
}

// services is the wired application graph for one command.
type services struct {
	stores   *allStores
	engine   *engine.Engine
	calc     *loss.Calculator
	ledger   *ledger.Service
	orch     *orchestrator.Orchestrator
	reports  *reporting.Generator
	ingester *ingestion.Ingester
	close    func()
}

// open builds stores and services and ingests --csv if given.
func (a *app) open(ctx context.Context) (*services, error) {
	stores, cleanup, err := openStores(ctx, a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	svc, err := a.wire(stores)
	if err != nil {
		cleanup()
		return nil, err
	}
	svc.close = cleanup

	if a.csvPath != "" {
		res, err := svc.ingester.IngestFrom(ctx, ingestion.NewCSVSource(a.csvPath), time.Time{}, time.Time{})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("ingest %s: %w", a.csvPath, err)
		}
		a.logger.Info("loaded measurements", "file", a.csvPath, "processed", res.Processed, "failed", res.Failed)
	}
	return svc, nil
}

func (a *app) wire(stores *allStores) (*services, error) {
	calc, err := loss.NewCalculator(a.cfg.Loss)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(a.cfg.EngineOptions(calc, a.logger))
	if err != nil {
		return nil, err
	}
	capacities := a.cfg.CapacityLookup()

	led, err := ledger.NewService(ledger.Options{
		Actions:      stores.actions,
		Entries:      stores.entries,
		Measurements: stores.measurements,
		Calculator:   calc,
		Capacities:   capacities,
		Metrics:      a.metrics,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Engine:       eng,
		Measurements: stores.measurements,
		Actions:      stores.actions,
		Insights:     stores.insights,
		Snapshots:    stores.snapshots,
		Progress:     stores.progress,
		Capacities:   capacities,
		Metrics:      a.metrics,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}

	ing, err := ingestion.NewIngester(ingestion.Options{
		Store:   stores.measurements,
		Metrics: a.metrics,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		stores:   stores,
		engine:   eng,
		calc:     calc,
		ledger:   led,
		orch:     orch,
		reports:  reporting.NewGenerator(stores.insights, stores.snapshots, led),
		ingester: ing,
	}, nil
}
