package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/circuitbreaker"
	"github.com/aman-churiwal/leetquery/internal/config"
	"github.com/aman-churiwal/leetquery/internal/handler"
	"github.com/aman-churiwal/leetquery/internal/healthcheck"
	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/aman-churiwal/leetquery/internal/middleware"
	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/query"
	"github.com/aman-churiwal/leetquery/internal/ratelimit"
	"github.com/aman-churiwal/leetquery/internal/repository"
	"github.com/aman-churiwal/leetquery/internal/service"
	"github.com/aman-churiwal/leetquery/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const storeBreakerName = "query-store"

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	httpServer *http.Server

	policies  *ratelimit.Policies
	breaker   *circuitbreaker.CircuitBreaker
	checker   *healthcheck.Checker
	resolver  *auth.Resolver
	logWriter *service.QueryLogWriter
	analytics *service.QueryAnalyticsService

	queryHandler    *handler.QueryHandler
	authHandler     *handler.AuthHandler
	catalogHandler  *handler.CatalogHandler
	adminHandler    *handler.AdminHandler
	queryLogHandler *handler.QueryLogHandler
	systemHandler   *handler.SystemHandler

	stopBackground context.CancelFunc
}

// New wires the gateway. redis may be nil, in which case limiter state and
// role lookups stay in process.
func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sqlDB, err := postgres.SQL()
	if err != nil {
		return nil, fmt.Errorf("failed to get query pool: %w", err)
	}

	s := &Server{
		router:   gin.New(),
		config:   cfg,
		redis:    redis,
		postgres: postgres,
	}

	s.breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:        storeBreakerName,
		MaxFailures: cfg.CircuitBreaker.MaxFailures,
		Timeout:     cfg.CircuitBreaker.Timeout,
		IsFailure:   query.IsStoreFailure,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
		},
	})

	// Repositories
	userRepo := repository.NewUserRepository(postgres)
	roleRepo := repository.NewRoleRepository(postgres)
	catalogRepo := repository.NewCatalogRepository(postgres)
	queryLogRepo := repository.NewQueryLogRepository(postgres)

	// Role lookups go through redis when it is available
	var roles auth.RoleStore = roleRepo
	var invalidator service.RoleInvalidator
	if redis != nil {
		cached := auth.NewCachedRoleStore(roleRepo, redis, cfg.Auth.RoleCacheTTL)
		roles = cached
		invalidator = cached
	}

	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	s.resolver = auth.NewResolver(tokens, roles)

	// Services
	executor := query.NewExecutor(sqlDB, query.ExecutorOptions{
		Timeout: cfg.Query.Timeout,
		Breaker: s.breaker,
	})
	s.logWriter = service.NewQueryLogWriter(queryLogRepo, service.QueryLogWriterOptions{
		BufferSize:    cfg.Query.LogBufferSize,
		BatchSize:     cfg.Query.LogBatchSize,
		FlushInterval: cfg.Query.LogFlushInterval,
	})
	queryService := service.NewQueryService(executor, s.logWriter, service.QueryServiceOptions{
		MaxLength:         cfg.Query.MaxLength,
		StoredQueryLength: cfg.Query.StoredQueryLength,
	})
	authService := service.NewAuthService(userRepo, roles, tokens)
	catalogService := service.NewCatalogService(catalogRepo)
	roleService := service.NewRoleService(roleRepo, invalidator)
	s.analytics = service.NewQueryAnalyticsService(queryLogRepo)

	s.checker = healthcheck.NewChecker(healthcheck.Config{Dependencies: s.dependencies()})
	s.policies = ratelimit.NewPolicies(cfg.RateLimit, redis)

	// Handlers
	s.queryHandler = handler.NewQueryHandler(queryService)
	s.authHandler = handler.NewAuthHandler(authService)
	s.catalogHandler = handler.NewCatalogHandler(catalogService)
	s.adminHandler = handler.NewAdminHandler(catalogService, roleService, roles)
	s.queryLogHandler = handler.NewQueryLogHandler(s.analytics)
	s.systemHandler = handler.NewSystemHandler(s.checker, s.breaker)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) dependencies() []healthcheck.Dependency {
	deps := []healthcheck.Dependency{
		{Name: "postgres", Check: s.postgres.Ping, Critical: true},
	}
	if s.redis != nil {
		deps = append(deps, healthcheck.Dependency{Name: "redis", Check: s.redis.Ping})
	}
	return deps
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.SecurityHeaders(s.config.IsProduction()))
	s.router.Use(middleware.CORS(s.config.Server.AllowedOrigins))
	if s.config.RateLimit.Enabled {
		s.router.Use(middleware.RateLimit(s.policies))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.systemHandler.Health)
	s.router.GET("/health/ready", s.systemHandler.Ready)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	queryAuth := middleware.OptionalAuth(s.resolver)
	if s.config.Query.RequireAuth {
		queryAuth = middleware.RequireAuth(s.resolver)
	}
	s.router.POST("/query/execute", queryAuth, s.queryHandler.Execute)
	s.router.POST("/executeQuery", queryAuth, s.queryHandler.Execute)

	authGroup := s.router.Group("/auth")
	{
		authGroup.POST("/register", s.authHandler.Register)
		authGroup.POST("/login", s.authHandler.Login)
		authGroup.POST("/refresh", s.authHandler.Refresh)
		authGroup.POST("/logout", s.authHandler.Logout)
		authGroup.GET("/me", middleware.RequireAuth(s.resolver), s.authHandler.Me)
	}

	s.router.GET("/stages", s.catalogHandler.Stages)
	s.router.GET("/problems", s.catalogHandler.Problems)
	s.router.GET("/problems/:stageId", s.catalogHandler.ProblemsByStage)
	s.router.GET("/levels/:levelId/challenges", s.catalogHandler.Challenges)
	s.router.GET("/levels/:levelId/schema", s.catalogHandler.Schema)

	// checkRole is a display hint and sits outside the role gate
	s.router.GET("/admin/checkRole", s.adminHandler.CheckRole)

	admin := s.router.Group("/admin", middleware.RequireRole(s.resolver, models.RoleAdmin))
	{
		admin.GET("/status", s.adminHandler.Status)
		admin.POST("/problems", s.adminHandler.CreateProblem)
		admin.DELETE("/problems/:id", s.adminHandler.DeleteProblem)
		admin.PUT("/roles/:subject", s.adminHandler.SetRole)
		admin.GET("/query-logs", s.queryLogHandler.GetLogs)
		admin.GET("/query-stats", s.queryLogHandler.GetSummary)
		admin.GET("/circuit-breakers", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/circuit-breakers/:name/reset", s.systemHandler.ResetCircuitBreaker)
	}
}

// startBackground launches the sweepers, the audit writer, log retention
// and the health checker.
func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel

	s.policies.StartSweepers(s.config.RateLimit.SweepInterval)
	s.logWriter.Start()
	s.analytics.StartRetention(ctx, s.config.Query.LogRetentionDays, time.Hour)
	s.checker.Start()
}

func (s *Server) Run(addr string) error {
	s.startBackground()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("environment", s.config.Server.Environment).
		Str("rate_limit_store", s.config.RateLimit.Store).
		Msg("starting LeetQuery backend")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, then drains the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if s.stopBackground != nil {
		s.stopBackground()
		s.checker.Stop()
		s.policies.Stop()
		if flushErr := s.logWriter.Stop(ctx); flushErr != nil {
			log.Warn().Err(flushErr).Msg("query log writer did not drain before shutdown")
		}
	}

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
