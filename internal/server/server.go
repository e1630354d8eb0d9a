package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/observability"
	obslogger "github.com/smallbiznis/soarecon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/soarecon/internal/observability/metrics"
	obstracing "github.com/smallbiznis/soarecon/internal/observability/tracing"
	reconciliationdomain "github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	signoffdomain "github.com/smallbiznis/soarecon/internal/signoff/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if httpMetrics != nil {
		r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	}

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	reconSvc   reconciliationdomain.Service
	signoffSvc signoffdomain.Service
	auditSvc   auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	ReconSvc   reconciliationdomain.Service
	SignoffSvc signoffdomain.Service
	AuditSvc   auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		reconSvc:   p.ReconSvc,
		signoffSvc: p.SignoffSvc,
		auditSvc:   p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Statements (vendor scoped) --------
	statements := v1.Group("/vendors/:vendor_id/statements")
	statements.GET("", s.ListStatements)
	statements.GET("/:case_id/lines", s.ListLines)
	statements.GET("/:case_id/summary", s.GetSummary)
	statements.GET("/:case_id/matches", s.ListMatches)
	statements.POST("/:case_id/matching-runs", s.RunMatching)
	statements.GET("/:case_id/discrepancies", s.ListDiscrepancies)
	statements.POST("/:case_id/discrepancies", s.CreateDiscrepancy)
	statements.POST("/:case_id/discrepancies/detect", s.DetectDiscrepancies)
	statements.POST("/:case_id/signoff", s.SignOff)
	statements.GET("/:case_id/signoff", s.GetAcknowledgement)
	statements.GET("/:case_id/audit-logs", s.ListAuditLogs)

	// -------- Matches --------
	v1.POST("/matches", s.CreateMatch)
	v1.POST("/matches/:match_id/confirm", s.ConfirmMatch)
	v1.POST("/matches/:match_id/reject", s.RejectMatch)
	v1.POST("/lines/:line_id/propose", s.ProposeMatch)
	v1.GET("/lines/:line_id/matches", s.ListLineMatches)

	// -------- Discrepancies --------
	v1.POST("/discrepancies/:discrepancy_id/resolve", s.ResolveDiscrepancy)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
