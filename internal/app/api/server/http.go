package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatflowers/billing/docs"
	"github.com/fatflowers/billing/internal/app/api/handlers"
	"github.com/fatflowers/billing/internal/app/service/billing"
	eventlog "github.com/fatflowers/billing/internal/app/service/event_log"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/statistics"
	wh "github.com/fatflowers/billing/internal/app/service/webhook_handler"
	cfgpkg "github.com/fatflowers/billing/pkg/config"

	mw "github.com/fatflowers/billing/internal/app/api/middleware"

	metrics "github.com/fatflowers/billing/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine(httpMetrics *metrics.HTTP) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware(), httpMetrics.HandlerFunc())
	return r
}

type routeParams struct {
	fx.In

	Engine  *gin.Engine
	Cfg     *cfgpkg.Config
	Log     *zap.SugaredLogger
	Webhook *wh.Handler
	Billing *billing.Service
	Store   ledger.Store
	Stats   *statistics.Service
	Journal *eventlog.Service
}

func registerRoutes(p routeParams) {
	r, log := p.Engine, p.Log

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	// Processor callbacks authenticate by signature, not by token
	handlers.RegisterWebhookRoutes(apiV1.Group("/billing/webhook"), p.Webhook, p.Cfg.Webhook.MaxBodyBytes, log)

	if p.Cfg.Admin.JWTSecret == "" {
		log.Warnw("admin.jwt_secret is empty; billing and admin routes are not mounted")
		return
	}
	auth := mw.AdminAuthMiddleware(p.Cfg.Admin.JWTSecret, log)

	handlers.RegisterBillingRoutes(apiV1.Group("/billing", auth), p.Billing, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", auth), handlers.AdminDeps{
		Payments: p.Store,
		Stats:    p.Stats,
		Journal:  p.Journal,
		Replayer: p.Webhook,
	})
}

func serve(lc fx.Lifecycle, log *zap.SugaredLogger, name, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting "+name+" server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("%s server error: %v", name, err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping " + name + " server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	serve(lc, log, "HTTP", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), r)
}

// runMetricsServer exposes the default registry on its own listener.
func runMetricsServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	serve(lc, log, "metrics", cfg.MetricsAddr, mux)
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
	fx.Invoke(runMetricsServer),
)
