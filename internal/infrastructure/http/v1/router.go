// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"traceledger/internal/app"
	"traceledger/internal/infrastructure/http/v1/handlers"
	"traceledger/internal/infrastructure/http/v1/middleware"
	"traceledger/internal/infrastructure/metrics"
	"traceledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Services are the domain services behind every endpoint.
	Services *app.Services

	// Storage is pinged by the readiness probe.
	Storage handlers.Pinger

	// Backend names the storage backend in /health/info.
	Backend string

	// Version is reported by /health/info.
	Version string

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator validates bearer tokens.
	JWTValidator middleware.JWTValidator

	// Metrics, when set, records HTTP metrics and serves /metrics.
	Metrics *metrics.Prometheus
}

// NewRouter creates and configures the gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Order matters: recovery must wrap everything and the error handler
	// must run before the logger reads the final status.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Storage, cfg.Backend, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))

	base := handlers.NewBaseHandler()
	svc := cfg.Services

	identifiers := handlers.NewIdentifierHandler(base, svc.Batches, svc.Serials)
	RegisterRoutes(api.Group("/identifiers"), []Route{
		{http.MethodPost, "/batches", middleware.PermIdentifiersAllocate, identifiers.AllocateBatch},
		{http.MethodPost, "/serials", middleware.PermIdentifiersAllocate, identifiers.AllocateSerials},
	})

	serialHandler := handlers.NewSerialHandler(base, svc.Registry)
	serialGroup := api.Group("/serials")
	serialGroup.GET("/:code",
		middleware.RequireAnyPermission(middleware.PermSerialsRead, middleware.PermTraceRead), serialHandler.Get)
	RegisterRoutes(serialGroup, []Route{
		{http.MethodGet, "/:code/transitions", middleware.PermSerialsRead, serialHandler.History},
		{http.MethodPost, "/:code/transitions", middleware.PermSerialsTransition, serialHandler.Transition},
	})

	ledgerHandler := handlers.NewLedgerHandler(base, svc.Ledger)
	RegisterRoutes(api.Group("/ledger"), []Route{
		{http.MethodPost, "/movements", middleware.PermLedgerWrite, ledgerHandler.Append},
		{http.MethodPost, "/movements/:lineId/compensations", middleware.PermLedgerCompensate, ledgerHandler.Compensate},
	})

	stockHandler := handlers.NewStockHandler(base, svc.Stock)
	RegisterRoutes(api.Group("/stock"), []Route{
		{http.MethodGet, "/:productId/soh", middleware.PermStockRead, stockHandler.GetSOH},
		{http.MethodGet, "/:productId/replay", middleware.PermStockRead, stockHandler.GetReplay},
		{http.MethodGet, "/:productId/turnover", middleware.PermStockRead, stockHandler.GetTurnover},
	})

	traceHandler := handlers.NewTraceHandler(base, svc.Trace)
	RegisterRoutes(api.Group("/trace"), []Route{
		{http.MethodGet, "/batches/:batchNumber", middleware.PermTraceRead, traceHandler.TraceBatch},
		{http.MethodGet, "/batches/:batchNumber/report", middleware.PermTraceRead, traceHandler.BatchReport},
		{http.MethodGet, "/serials/:code", middleware.PermTraceRead, traceHandler.TraceSerial},
	})

	counters := handlers.NewCounterHandler(base, svc.Counters)
	RegisterRoutes(api.Group("/admin"), []Route{
		{http.MethodGet, "/counters", middleware.PermAdminCounters, counters.Get},
		{http.MethodPut, "/counters", middleware.PermAdminCounters, counters.Advance},
	})

	return router
}
