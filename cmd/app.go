package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/uwscope/scope-web-sub000/internal/config"
	"github.com/uwscope/scope-web-sub000/internal/db"
	"github.com/uwscope/scope-web-sub000/internal/ids"
	"github.com/uwscope/scope-web-sub000/internal/logger"
	"github.com/uwscope/scope-web-sub000/internal/metrics"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
	"github.com/uwscope/scope-web-sub000/internal/service"
	"github.com/uwscope/scope-web-sub000/internal/validation"
)

// app holds everything a command needs once config is loaded.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	database repository.Database
	records  *service.Records
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	gen := ids.NewGenerator(nil)
	if err := a.openStorage(ctx, gen); err != nil {
		return a.fail(err)
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return a.fail(err)
	}
	stores := service.NewStores(a.database,
		repository.WithIDGenerator(gen),
		repository.WithLogger(log),
		repository.WithMetrics(a.metrics),
	)
	a.records = service.NewRecords(service.Dependencies{
		Stores:    stores,
		Validator: validation.New(),
		Clock:     service.RealClock{},
		Settings: service.ScheduleSettings{
			Location:            loc,
			HorizonMonths:       cfg.Schedule.HorizonMonths,
			AssessmentTimeOfDay: cfg.Schedule.AssessmentTimeOfDay,
		},
		Logger:  log,
		Metrics: a.metrics,
	})
	return a, nil
}

func (a *app) openStorage(ctx context.Context, gen ids.Generator) error {
	switch a.cfg.Storage {
	case config.StorageMongo:
		client, err := db.NewMongoClient(ctx, a.cfg.Mongo)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Disconnect)
		a.database = repository.NewMongoDatabase(client.Database(a.cfg.Mongo.Database), gen)
		a.log.Info("storage ready", "backend", "mongo", "database", a.cfg.Mongo.Database)
	default:
		gormDB, err := db.NewGormDB(&a.cfg.Database)
		if err != nil {
			return err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return fmt.Errorf("sql DB: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return sqlDB.Close() })
		if err := model.AutoMigrate(gormDB); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		a.database = repository.NewGormDatabase(gormDB, gen)
		a.log.Info("storage ready", "backend", "gorm", "driver", a.cfg.Database.Driver)
	}
	return nil
}

// fail releases whatever newApp already opened.
func (a *app) fail(err error) (*app, error) {
	a.close()
	return nil, err
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.log.Sync()
}

// maintainAll maintains every collection, at most cfg.Maintain.Concurrency at a time.
func (a *app) maintainAll(ctx context.Context) error {
	names, err := a.database.CollectionNames(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Maintain.Concurrency)
	for _, name := range names {
		g.Go(func() error {
			if _, err := a.records.Maintain(ctx, name); err != nil {
				return fmt.Errorf("maintain %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
