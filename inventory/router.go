package inventory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Tsukikage7/inventory-service/health"
	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
	"github.com/Tsukikage7/inventory-service/recovery"
	"github.com/Tsukikage7/inventory-service/tracing"
)

// RouterConfig HTTP 路由依赖.
type RouterConfig struct {
	Handler     *Handler
	Health      *health.Health
	Logger      logger.Logger
	Collector   metrics.Collector
	ServiceName string
	Tracing     bool
}

// NewRouter 创建 HTTP 路由.
//
// 中间件顺序：RequestID、panic 恢复、链路追踪、指标.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recovery.HTTPMiddleware(
		recovery.WithLogger(cfg.Logger),
		recovery.WithMetrics(cfg.Collector),
	))
	if cfg.Tracing {
		r.Use(tracing.HTTPMiddleware(cfg.ServiceName))
	}
	if cfg.Collector != nil {
		r.Use(metrics.HTTPMiddleware(cfg.Collector))
		r.Method(http.MethodGet, cfg.Collector.GetPath(), cfg.Collector.GetHandler())
	}

	if cfg.Health != nil {
		r.Get(health.DefaultLivenessPath, health.LivenessHandler(cfg.Health))
		r.Get(health.DefaultReadinessPath, health.ReadinessHandler(cfg.Health))
	}
	if cfg.Handler != nil {
		cfg.Handler.Routes(r)
	}
	return r
}
