package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/qpayrelay/internal/config"
	notificationdomain "github.com/smallbiznis/qpayrelay/internal/notification/domain"
	"github.com/smallbiznis/qpayrelay/internal/observability"
	obslogger "github.com/smallbiznis/qpayrelay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/qpayrelay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/qpayrelay/internal/payment/domain"
	"github.com/smallbiznis/qpayrelay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxUploadBytes = 20 << 20

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

type EngineParams struct {
	fx.In

	Cfg         config.Config
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if p.HTTPMetrics != nil {
		r.Use(p.HTTPMetrics.GinMiddleware())
	}
	r.Use(CORS(p.Cfg.CORSAllowedOrigins))
	r.Use(ErrorHandlingMiddleware())

	return r
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	paymentSvc      paymentdomain.Service
	notificationSvc notificationdomain.Service
	limiter         *ratelimit.ClientLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB `optional:"true"`
	Log             *zap.Logger
	PaymentSvc      paymentdomain.Service
	NotificationSvc notificationdomain.Service
	Limiter         *ratelimit.ClientLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		paymentSvc:      p.PaymentSvc,
		notificationSvc: p.NotificationSvc,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerOpsRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOpsRoutes() {
	s.engine.GET("/health", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payments --------
	api.POST("/create-invoice", s.ClientRateLimit(rateLimitInvoice), s.CreateInvoice)
	api.GET("/check-payment/:id", s.CheckPayment)
	api.GET("/payment-callback", s.PaymentCallback)
	api.POST("/payment-callback", s.PaymentCallback)
	api.POST("/payments/:id/receipt", s.SendReceipt)

	// -------- Email --------
	api.POST("/send-pdf", s.SendPDF)
	api.POST("/contact", s.ClientRateLimit(rateLimitContact), s.Contact)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// RunHTTP serves the engine for the lifetime of the fx app. A listener failure
// shuts the app down instead of crashing the process.
func RunHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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
