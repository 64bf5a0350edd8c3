package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	acprouter "github.com/cardmart/cardmart/engine/acp/router"
	"github.com/cardmart/cardmart/engine/auth"
	authpg "github.com/cardmart/cardmart/engine/auth/infra/postgres"
	authrouter "github.com/cardmart/cardmart/engine/auth/router"
	"github.com/cardmart/cardmart/engine/fulfillment"
	"github.com/cardmart/cardmart/engine/infra/postgres"
	lgmiddleware "github.com/cardmart/cardmart/engine/infra/server/middleware/logger"
	"github.com/cardmart/cardmart/engine/infra/server/middleware/ratelimit"
	listingpg "github.com/cardmart/cardmart/engine/listing/infra/postgres"
	"github.com/cardmart/cardmart/engine/mcp"
	orderpg "github.com/cardmart/cardmart/engine/order/infra/postgres"
	"github.com/cardmart/cardmart/engine/payment"
	"github.com/cardmart/cardmart/engine/session"
	sessionpg "github.com/cardmart/cardmart/engine/session/infra/postgres"
	"github.com/cardmart/cardmart/engine/usage"
	usagepg "github.com/cardmart/cardmart/engine/usage/infra/postgres"
	walletpg "github.com/cardmart/cardmart/engine/wallet/infra/postgres"
	"github.com/cardmart/cardmart/pkg/config"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/gin-gonic/gin"
)

const apiBasePath = "/api/v0"

// Server wires the transaction core together: storage, the credential
// gate, both wire dialects and the fulfillment side calls.
type Server struct {
	cfg        *config.Config
	store      *postgres.Store
	httpServer *http.Server
}

// NewServer connects to storage and assembles the HTTP surface.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := postgres.NewStore(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, store: store}
	engine, err := s.buildRouter(ctx)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) buildRouter(ctx context.Context) (*gin.Engine, error) {
	pool := s.store.Pool()
	keyRepo := authpg.NewRepository(pool)
	usageRepo := usagepg.NewRepository(pool)
	listingRepo := listingpg.NewRepository(pool)
	walletRepo := walletpg.NewRepository(pool)
	sessionRepo := sessionpg.NewRepository(pool)
	orderRepo := orderpg.NewRepository(pool)

	processor := payment.NewHTTPProcessor(
		s.cfg.Payment.ProcessorURL, s.cfg.Payment.ProcessorAPIKey, s.cfg.Payment.Timeout)
	var dispatcher *fulfillment.Dispatcher
	if s.cfg.Fulfillment.LabelServiceURL != "" || s.cfg.Fulfillment.NotifyURL != "" {
		dispatcher = fulfillment.NewDispatcher(
			fulfillment.NewHTTPLabelService(s.cfg.Fulfillment.LabelServiceURL, s.cfg.Fulfillment.Timeout),
			fulfillment.NewHTTPNotifier(s.cfg.Fulfillment.NotifyURL, s.cfg.Fulfillment.Timeout),
			orderRepo,
			s.cfg.Fulfillment.Timeout,
		)
	}
	sessions := session.NewService(
		sessionRepo, listingRepo, walletRepo, orderRepo, processor, dispatcher, s.cfg.Session.TTL)

	limiter := usage.NewLimiter(usageRepo)
	gate := usage.NewMiddleware(limiter, usageRepo)
	authmw := auth.NewMiddleware(keyRepo)
	ipLimiter, err := ratelimit.NewManager(&ratelimit.Config{
		Limit:         s.cfg.RateLimit.IPLimit,
		Period:        s.cfg.RateLimit.IPPeriod,
		RedisAddr:     s.cfg.Redis.Addr,
		RedisPassword: s.cfg.Redis.Password,
		RedisDB:       s.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(lgmiddleware.Middleware(logger.FromContext(ctx)))

	r.GET("/healthz", func(c *gin.Context) {
		if err := s.store.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiBase := r.Group(apiBasePath)
	apiBase.Use(ipLimiter.Middleware())

	authrouter.RegisterRoutes(apiBase, keyRepo, limiter, authmw,
		s.cfg.RateLimit.DefaultHourlyLimit, s.cfg.RateLimit.DefaultDailyLimit)
	acprouter.RegisterRoutes(apiBase, acprouter.NewHandler(sessions, listingRepo), authmw, gate)

	rpc := mcp.NewDispatcher(sessions, listingRepo)
	apiBase.POST("/rpc", authmw.Authenticate(), gate.Gate(), rpc.Handle)

	tools := mcp.NewToolServer(sessions, listingRepo)
	mcpGroup := apiBase.Group("/mcp")
	mcpGroup.Use(authmw.Authenticate(), gate.Gate())
	mcpGroup.Any("", gin.WrapH(tools.Handler()))
	mcpGroup.Any("/*path", gin.WrapH(tools.Handler()))

	return r, nil
}

// Run serves until the context is canceled, then drains in-flight requests
// within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		s.store.Close(ctx)
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout())
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.store.Close(shutdownCtx)
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 5 * time.Second
}
