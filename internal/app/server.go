// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dashboard-service/internal/config"
	"dashboard-service/internal/db"
	authHandler "dashboard-service/internal/handlers/auth"
	wsHandler "dashboard-service/internal/handlers/websocket"
	"dashboard-service/internal/metrics"
	"dashboard-service/internal/middleware"
	"dashboard-service/internal/pkg/jwt"
	otpcode "dashboard-service/internal/pkg/otp"
	"dashboard-service/internal/pkg/session"
	"dashboard-service/internal/repository/postgres"
	"dashboard-service/internal/repository/redisstore"
	authUsecase "dashboard-service/internal/service/auth"
	"dashboard-service/internal/service/email"
	otpengine "dashboard-service/internal/service/otp"
	"dashboard-service/internal/websocket"
	wsHandlers "dashboard-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	mu         sync.Mutex
	httpServer *http.Server
	pool       *pgxpool.Pool
	redis      redis.UniversalClient
	stopHub    context.CancelFunc

	authService *authUsecase.AuthService
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires every dependency and serves HTTP until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	logger := s.logger

	// ----- PostgreSQL -----
	if s.cfg.Postgres.AutoMigrate {
		if err := db.RunMigrations(s.cfg.Postgres.URL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	pool, err := db.ConnectDB(ctx, db.PostgresConfig{
		URL:      s.cfg.Postgres.URL,
		MaxConns: s.cfg.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool
	logger.Info("connected to postgres")

	// ----- Redis -----
	redisClient, err := db.NewRedis(db.RedisConfig{
		ClusterMode: s.cfg.Redis.ClusterMode,
		Addresses:   s.cfg.Redis.Addresses,
		Password:    s.cfg.Redis.Password,
		DB:          s.cfg.Redis.DB,
		PoolSize:    s.cfg.Redis.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redis = redisClient
	logger.Info("connected to redis", zap.Strings("addrs", s.cfg.Redis.Addresses))

	// ----- Metrics -----
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.TokenConfig())
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Session Manager & Rate Limiter -----
	sessionManager := session.NewManager(redisClient, logger)
	rateLimiter := session.NewRateLimiter(redisClient, s.cfg.Limits())

	// ----- OTP -----
	hasher, err := otpcode.NewHasher([]byte(s.cfg.OTP.Secret))
	if err != nil {
		return fmt.Errorf("failed to build OTP hasher: %w", err)
	}

	var otpStore otpengine.Store
	switch s.cfg.OTP.Store {
	case config.StoreRedis:
		otpStore = redisstore.NewOTPStore(redisClient, logger)
	default:
		otpStore = postgres.NewOTPRepository(pool)
	}
	engine := otpengine.NewEngine(otpStore, hasher, s.cfg.EngineConfig(), logger, otpengine.WithMetrics(recorder))
	logger.Info("otp engine ready",
		zap.String("store", s.cfg.OTP.Store),
		zap.String("policy", s.cfg.OTP.Policy),
	)

	// ----- Email -----
	var sender email.Sender
	if s.cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, emails will be logged instead of sent")
		sender = email.NewLogSender(logger)
	} else {
		sender = email.NewEmailSender(
			s.cfg.SMTP.Host,
			s.cfg.SMTP.Port,
			s.cfg.SMTP.User,
			s.cfg.SMTP.Pass,
			s.cfg.SMTP.FromName,
			s.cfg.SMTP.Secure,
		)
	}
	emailHelper := authUsecase.NewEmailHelper(sender, logger)

	// ----- Repositories -----
	identityRepo := postgres.NewIdentityRepository(pool, bcrypt.DefaultCost)
	ticketLedger := redisstore.NewTicketLedger(redisClient)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(logger)
	hub.RegisterHandler(wsHandlers.NewSessionHandler(sessionManager, logger))

	hubCtx, stopHub := context.WithCancel(context.Background())
	s.stopHub = stopHub
	go hub.Run(hubCtx)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(
		identityRepo,
		jwtManager,
		sessionManager,
		rateLimiter,
		hub,
		recorder,
		logger,
	)
	s.authService = authService

	resetService := authUsecase.NewResetService(authUsecase.ResetDeps{
		Identities: identityRepo,
		Engine:     engine,
		Tokens:     jwtManager,
		Ledger:     ticketLedger,
		Delivery:   emailHelper,
		Sessions:   sessionManager,
		Limiter:    rateLimiter,
		Events:     hub,
		Metrics:    recorder,
		Logger:     logger,
	}, authUsecase.ResetConfig{
		TicketTTL:         s.cfg.Reset.TicketTTL,
		MinPasswordLength: s.cfg.Reset.MinPasswordLength,
	})

	// ----- Initialize Super Admin -----
	if err := s.initializeSuperAdmin(ctx); err != nil {
		logger.Error("failed to initialize super admin", zap.Error(err))
	}

	// ----- Handlers -----
	cookie := middleware.CookieConfig{
		Name:   s.cfg.Cookie.Name,
		Secure: s.cfg.Cookie.Secure,
		MaxAge: s.cfg.JWT.MaxLifetime,
	}
	authHandlerInst := authHandler.NewAuthHandler(authService, resetService, cookie, logger)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, sessionManager, s.cfg.CORSOrigins, logger)

	// ----- Middlewares -----
	policy := s.routePolicy()
	guard := middleware.NewGuard(policy, jwtManager, sessionManager, cookie, recorder, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, cookie, s.cfg.Routes.RefreshGranularity, logger)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.CORSOrigins),
		guard.Middleware(),
	)

	// ----- Router -----
	health := newHealthHandler(map[string]Pinger{
		"postgres": pool,
		"redis":    redisPing{client: redisClient},
	})
	handlers := &Handlers{
		AuthHandler:    authHandlerInst,
		WSHandler:      wsHandlerInst,
		AuthMiddleware: authMiddleware,
		Metrics:        metrics.Handler(registry),
		Health:         health,
		LoginPath:      policy.LoginPath(),
		DashboardPath:  policy.DashboardPath(),
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil
	}

	logger.Info("server listening", zap.String("addr", s.cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains HTTP, stops the hub and closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.stopHub != nil {
		s.stopHub()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}

func (s *Server) routePolicy() *middleware.RoutePolicy {
	prefixes := make(map[string]middleware.Access)
	for _, p := range s.cfg.Routes.Protected {
		prefixes[p] = middleware.AccessAuthenticated
	}
	for _, p := range s.cfg.Routes.Public {
		prefixes[p] = middleware.AccessNone
	}
	return middleware.NewRoutePolicy(
		s.cfg.Routes.LoginPath,
		s.cfg.Routes.DashboardPath,
		middleware.AccessNone,
		prefixes,
	)
}

// initializeSuperAdmin creates the super admin from SUPER_ADMIN_* when no
// super admin exists yet.
func (s *Server) initializeSuperAdmin(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sa := s.cfg.SuperAdmin
	if sa.Email == "" || sa.Password == "" {
		s.logger.Warn("SUPER_ADMIN_EMAIL or SUPER_ADMIN_PASSWORD not set, skipping super admin bootstrap")
		return nil
	}
	if len(sa.Password) < s.cfg.Reset.MinPasswordLength {
		return fmt.Errorf("super admin password must be at least %d characters", s.cfg.Reset.MinPasswordLength)
	}

	if err := s.authService.EnsureSuperAdminExists(ctx, sa.Email, sa.Password, sa.FullName); err != nil {
		return fmt.Errorf("failed to ensure super admin exists: %w", err)
	}
	return nil
}
