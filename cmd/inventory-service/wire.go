package main

import (
	"context"

	"github.com/Tsukikage7/inventory-service/app"
	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/cache"
	"github.com/Tsukikage7/inventory-service/config"
	"github.com/Tsukikage7/inventory-service/database"
	"github.com/Tsukikage7/inventory-service/health"
	"github.com/Tsukikage7/inventory-service/idempotency"
	"github.com/Tsukikage7/inventory-service/inventory"
	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
	"github.com/Tsukikage7/inventory-service/server"
	"github.com/Tsukikage7/inventory-service/tracing"
)

// 清理优先级，数字越小越先执行.
const (
	cleanupTracing  = 10
	cleanupCache    = 20
	cleanupDatabase = 30
)

// build 按 配置 → 追踪 → 指标 → 数据库 → 缓存 → 消息代理 → 用例 → HTTP 的顺序组装应用.
//
// 组装失败时关闭已创建的资源.
func build(cfg *config.Config, log logger.Logger) (_ *app.Application, err error) {
	var (
		cleanups []app.Option
		closers  []func()
	)
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	tp, err := tracing.NewTracer(&cfg.Tracing, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, app.RegisterCleanup("tracing", tp.Shutdown, cleanupTracing))
	closers = append(closers, func() { _ = tp.Shutdown(context.Background()) })

	var collector metrics.Collector
	if cfg.Metrics.Enabled {
		c, err := metrics.NewMetrics(&cfg.Metrics)
		if err != nil {
			return nil, err
		}
		collector = c
	}

	cfg.Database.EnableTracing = cfg.Database.EnableTracing && cfg.Tracing.Enabled
	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, app.RegisterCloser("database", db, cleanupDatabase))
	closers = append(closers, func() { _ = db.Close() })
	hooks := app.NewHooks()
	if cfg.Database.AutoMigrate {
		hooks.On(app.BeforeStart, "migrate", func(context.Context) error {
			return db.AutoMigrate(&inventory.Stock{}, &inventory.ProcessedEvent{})
		})
	}

	brokerOpts := []broker.Option{broker.WithLogger(log)}
	if collector != nil {
		brokerOpts = append(brokerOpts, broker.WithMetrics(collector))
	}
	if cfg.Tracing.Enabled {
		brokerOpts = append(brokerOpts, broker.WithTracing(cfg.App.Name))
	}
	b, err := broker.New(&cfg.Broker, brokerOpts...)
	if err != nil {
		return nil, err
	}

	serviceOpts := []inventory.ServiceOption{
		inventory.WithLogger(log),
		inventory.WithSource(cfg.App.Name),
	}
	if collector != nil {
		serviceOpts = append(serviceOpts, inventory.WithMetrics(collector))
	}
	service := inventory.NewService(inventory.NewRepository(db), db, b, cfg.Topics.InventoryEvents, serviceOpts...)

	readiness := []health.Checker{
		health.NewPingChecker("database", db),
		health.NewFuncChecker("broker", b.HealthCheck),
	}

	var adjustments broker.MessageHandler = inventory.NewAdjustmentHandler(service, log)
	if cfg.Idempotency.Enabled {
		c, err := cache.NewCache(&cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, app.RegisterCloser("cache", c, cleanupCache))
		closers = append(closers, func() { _ = c.Close() })
		readiness = append(readiness, health.NewPingChecker("redis", c))

		idemOpts := []idempotency.Option{
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLockTimeout(cfg.Idempotency.LockTimeout),
			idempotency.WithLogger(log),
		}
		if collector != nil {
			idemOpts = append(idemOpts, idempotency.WithMetrics(collector))
		}
		adjustments = idempotency.Middleware(idempotency.NewStore(c), idemOpts...)(adjustments)
	}

	router := inventory.NewRouter(inventory.RouterConfig{
		Handler:     inventory.NewHandler(service),
		Health:      health.New(health.WithReadinessChecker(readiness...)),
		Logger:      log,
		Collector:   collector,
		ServiceName: cfg.App.Name,
		Tracing:     cfg.Tracing.Enabled,
	})
	httpSrv := server.NewHTTP(router,
		server.WithHTTPAddr(cfg.HTTP.Addr()),
		server.WithHTTPReadTimeout(cfg.HTTP.ReadTimeout),
		server.WithHTTPWriteTimeout(cfg.HTTP.WriteTimeout),
		server.WithHTTPIdleTimeout(cfg.HTTP.IdleTimeout),
		server.WithHTTPLogger(log),
	)

	opts := append([]app.Option{
		app.Name(cfg.App.Name),
		app.Version(cfg.App.Version),
		app.Logger(log),
		app.GracefulTimeout(cfg.App.ShutdownTimeout),
		app.SetHooks(hooks),
	}, cleanups...)

	application := app.New(opts...)
	application.Attach(
		app.NewComponent("broker", b.Connect, b.Disconnect),
		app.NewComponent("subscriptions", func(ctx context.Context) error {
			return b.Subscribe(ctx, cfg.Topics.InventoryAdjustments, adjustments)
		}, nil),
	)
	application.Use(httpSrv)
	return application, nil
}
