package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/handlers"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
)

type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	http     *http.Server
	logger   *logging.LoggerV2
}

func New(h *handlers.Handlers, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestID())

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logging.NewLoggerV2("http-server"),
	}

	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.Health)
	s.router.GET("/ready", h.Ready)
	s.router.GET("/live", h.Live)
	s.router.GET("/metrics", h.Metrics)
	s.router.GET("/version", h.Version)

	v1 := s.router.Group("/api/v1")

	// Provider callbacks are unauthenticated; the reference is re-verified with the provider.
	v1.GET("/payments/:provider/callback", h.PaymentCallback)
	v1.POST("/payments/:provider/callback", h.PaymentCallback)

	authed := v1.Group("", handlers.RequireIdentity())
	{
		authed.POST("/orders", h.CreateOrder)
		authed.GET("/orders", h.ListOrders)
		authed.GET("/orders/:id", h.GetOrder)
		authed.POST("/orders/:id/payment", h.InitializePayment)

		authed.GET("/earnings", h.GetEarnings)

		authed.POST("/withdrawals", h.RequestWithdrawal)
		authed.GET("/withdrawals", h.ListWithdrawals)
		authed.GET("/withdrawals/stats", h.GetWithdrawalStats)
		authed.GET("/withdrawals/:id", h.GetWithdrawal)
	}

	admin := authed.Group("/admin", handlers.RequireAdmin())
	{
		admin.PATCH("/withdrawals/:id/status", h.UpdateWithdrawalStatus)
		admin.GET("/settings", h.GetSettings)
		admin.PATCH("/settings", h.UpdateSettings)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", logging.Fields{"addr": s.http.Addr})
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
