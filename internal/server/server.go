package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	chatdomain "github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/chat/liveevents"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/observability"
	obsmiddleware "github.com/smallbiznis/mystictxt/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mystictxt/internal/observability/metrics"
	obstracing "github.com/smallbiznis/mystictxt/internal/observability/tracing"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// RunHTTP serves the engine for the lifetime of the fx application.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine      *gin.Engine
	cfg         config.Config
	tokens      *auth.TokenVerifier
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	chatSvc     chatdomain.Service
	walletSvc   walletdomain.Service
	pricing     *config.PricingHolder
	liveEvents  *liveevents.Hub
	chatLimiter *ratelimit.ChatLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Tokens      *auth.TokenVerifier
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	ChatSvc     chatdomain.Service
	WalletSvc   walletdomain.Service
	Pricing     *config.PricingHolder  `optional:"true"`
	LiveEvents  *liveevents.Hub        `optional:"true"`
	ChatLimiter *ratelimit.ChatLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		tokens:      p.Tokens,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		chatSvc:     p.ChatSvc,
		walletSvc:   p.WalletSvc,
		pricing:     p.Pricing,
		liveEvents:  p.LiveEvents,
		chatLimiter: p.ChatLimiter,
		obsMetrics:  p.ObsMetrics,
	}
}

func RegisterRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/chat/pricing", s.GetChatPricing)

	authed := api.Group("", s.AuthRequired())

	// -------- Account & Wallet --------
	authed.GET("/account", s.GetAccount)
	authed.GET("/wallet", s.GetWallet)
	authed.GET("/wallet/transactions", s.ListWalletTransactions)
	authed.POST("/wallet/add-credits", s.AddCredits)

	// -------- Chat --------
	chat := authed.Group("/chat/sessions")
	{
		chat.POST("", s.SessionRequestRateLimit(), s.RequestChatSession)
		chat.GET("/:id", s.GetChatSession)
		chat.GET("/:id/messages", s.ListChatMessages)
		chat.POST("/:id/messages", s.MessageRateLimit(), s.PostChatMessage)
		chat.POST("/:id/end", s.EndChatSession)
		chat.GET("/:id/stream", s.StreamChatSession)
	}
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin/api")

	admin.Use(s.AuthRequired())
	admin.Use(RequireRole(auth.RoleAdvisor, auth.RoleAdmin))

	// -------- Live sessions --------
	admin.GET("/live-sessions", s.ListLiveSessions)
	admin.POST("/live-sessions/:id/accept", s.AcceptLiveSession)
	admin.PATCH("/live-sessions/:id", s.UpdateLiveSession)
	admin.POST("/live-sessions/:id/messages", s.MessageRateLimit(), s.PostChatMessage)

	// -------- Admin-only --------
	admin.POST("/wallets/:customer_id/credits", RequireRole(auth.RoleAdmin), s.GrantCredits)
	admin.GET("/audit-logs", RequireRole(auth.RoleAdmin), s.ListAuditLogs)
}

func (s *Server) pricingConfig() config.PricingConfig {
	if s.pricing == nil {
		return config.DefaultPricingConfig()
	}
	return s.pricing.Get()
}
