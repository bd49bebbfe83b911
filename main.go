package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"production-dashboard/config"
	"production-dashboard/libs"
	"production-dashboard/media"
	"production-dashboard/middleware"
	"production-dashboard/realtime"
	"production-dashboard/repositories"
	"production-dashboard/routes"
	"production-dashboard/services"
	"production-dashboard/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// @title Production Dashboard API
// @version 1.0
// @description Live order-production dashboard for design, preparation and packaging teams
// @host localhost:8082
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := utils.NewLogger("info", true)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := utils.NewLogger(cfg.LogLevel, !cfg.IsProduction())
	if !cfg.EnvFileLoaded {
		log.Debug().Msg("no .env file, using environment only")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if cfg.AccessToken == "" {
		log.Fatal().Msg("ACCESS_TOKEN is required")
	}
	tokens, err := services.NewTokenSource(cfg.AccessToken, cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid access token")
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, tokens cannot be verified and the session token will not be refreshed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hidden, closeStore := openHiddenStore(ctx, cfg, log)
	defer closeStore()

	client := repositories.NewAPIClient(cfg.APIBaseURL, tokens.Token, &http.Client{Timeout: 30 * time.Second}, log)

	session, err := services.NewSession(services.SessionDeps{
		Tokens:   tokens,
		Orders:   repositories.NewOrderRepository(client),
		Messages: repositories.NewMessageRepository(client),
		Hidden:   hidden,
		Cache:    mediaCache(cfg, log),
		Resolver: mediaResolver(cfg, log),
	}, services.SessionOptions{
		APIBaseURL:      cfg.APIBaseURL,
		HubPath:         cfg.HubPath,
		Role:            cfg.DashboardRole,
		Realtime:        realtimeOptions(cfg),
		EventQueueSize:  cfg.EventQueueSize,
		RefreshDebounce: cfg.RefreshDebounce,
		Loader: media.LoaderOptions{
			MaxConcurrent: cfg.MediaMaxConcurrent,
			RetryDelay:    cfg.MediaRetryDelay,
		},
		LeadRows: cfg.ViewportLeadRows,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dashboard session")
	}
	if err := session.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start dashboard session")
	}
	defer session.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins(), !cfg.IsProduction()))
	routes.SetupRoutes(router, session, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.AppEnv).
			Str("role", string(session.Policy.Role)).
			Msgf("Swagger UI: http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func realtimeOptions(cfg *config.Config) realtime.Options {
	opts := realtime.DefaultOptions()
	opts.DevOrigins = cfg.DevHubOrigins
	opts.ServerTimeout = cfg.ServerTimeout
	opts.HeartbeatInterval = cfg.HeartbeatInterval
	opts.KeepAliveInterval = cfg.KeepAliveInterval
	opts.Reconnect.MaxAttempts = cfg.MaxReconnectAttempts
	return opts
}

// openHiddenStore uses Postgres when DATABASE_URL is set and the local
// SQLite file otherwise.
func openHiddenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repositories.HiddenMessageStore, func()) {
	if cfg.DatabaseURL != "" {
		pool, err := config.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		repo, err := repositories.NewPostgresHiddenMessageRepository(ctx, pool)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare hidden message table")
		}
		log.Info().Msg("hidden messages stored in Postgres")
		return repo, pool.Close
	}

	db, err := config.OpenLocalStore(cfg.LocalStorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LocalStorePath).Msg("failed to open local store")
	}
	repo, err := repositories.NewSQLiteHiddenMessageRepository(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare hidden message table")
	}
	log.Info().Str("path", cfg.LocalStorePath).Msg("hidden messages stored locally")
	return repo, func() { db.Close() }
}

func mediaCache(cfg *config.Config, log zerolog.Logger) media.Cache {
	local := media.NewMemoryCache()
	rdb := config.ConnectRedis(cfg, log)
	if rdb == nil {
		return local
	}
	return media.NewTieredCache(local, media.NewRedisCache(rdb, "media_url_", cfg.MediaCacheTTL, log))
}

func mediaResolver(cfg *config.Config, log zerolog.Logger) media.Resolver {
	resolver, err := libs.NewCloudinaryResolver(cfg.CloudinaryURL, cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if errors.Is(err, libs.ErrCloudinaryNotConfigured) {
		return media.PassthroughResolver
	}
	if err != nil {
		log.Warn().Err(err).Msg("cloudinary unavailable, media references used as-is")
		return media.PassthroughResolver
	}
	return resolver
}
