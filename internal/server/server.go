package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/adbilling/internal/audit"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	"github.com/smallbiznis/adbilling/internal/authorization"
	"github.com/smallbiznis/adbilling/internal/catalog"
	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/smallbiznis/adbilling/internal/earning"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	"github.com/smallbiznis/adbilling/internal/invoice"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/observability"
	obsmiddleware "github.com/smallbiznis/adbilling/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	obstracing "github.com/smallbiznis/adbilling/internal/observability/tracing"
	"github.com/smallbiznis/adbilling/internal/payment"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	"github.com/smallbiznis/adbilling/internal/payout"
	payoutdomain "github.com/smallbiznis/adbilling/internal/payout/domain"
	"github.com/smallbiznis/adbilling/internal/reporting"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/smallbiznis/adbilling/internal/systemconfig"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/internal/usage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	catalog.Module,
	systemconfig.Module,
	usage.Module,
	invoice.Module,
	payment.Module,
	earning.Module,
	payout.Module,
	reporting.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine          *gin.Engine
	cfg             config.Config
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	earningSvc      earningdomain.Service
	payoutSvc       payoutdomain.Service
	reportSvc       reportingdomain.Service
	systemConfigSvc systemconfigdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	EarningSvc      earningdomain.Service
	PayoutSvc       payoutdomain.Service
	ReportSvc       reportingdomain.Service
	SystemConfigSvc systemconfigdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		earningSvc:      p.EarningSvc,
		payoutSvc:       p.PayoutSvc,
		reportSvc:       p.ReportSvc,
		systemConfigSvc: p.SystemConfigSvc,
	}

	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", ActorRequired())

	// -------- Invoices --------
	admin.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	admin.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	admin.POST("/invoices/generate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.GenerateInvoices)
	admin.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	admin.GET("/invoices/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.DownloadInvoicePDF)
	admin.POST("/invoices/:id/actions", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceUpdate), s.ApplyInvoiceAction)

	// -------- Payments --------
	admin.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
	admin.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.CreatePayment)
	admin.GET("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPaymentByID)
	admin.POST("/payments/:id/status", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentUpdate), s.UpdatePaymentStatus)

	// -------- Payouts --------
	admin.GET("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListPayouts)
	admin.GET("/payouts/:id", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.GetPayoutByID)
	admin.POST("/payouts/:id/actions", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutUpdate), s.ApplyPayoutAction)
	admin.POST("/earnings/generate", s.authorize(authorization.ObjectEarning, authorization.ActionEarningGenerate), s.GenerateEarnings)
	admin.GET("/partners/:id/summary", s.authorize(authorization.ObjectPartner, authorization.ActionPartnerView), s.GetPartnerSummary)

	// -------- Reports --------
	admin.GET("/reports/:type", s.authorize(authorization.ObjectReport, authorization.ActionReportView), s.GetReport)

	// -------- Settings & audit --------
	admin.GET("/system-config", s.authorize(authorization.ObjectSystemConfig, authorization.ActionSystemConfigView), s.ListSystemConfig)
	admin.PUT("/system-config/:key", s.authorize(authorization.ObjectSystemConfig, authorization.ActionSystemConfigUpdate), s.UpdateSystemConfig)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
