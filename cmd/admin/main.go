package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"birthdayadmin/internal/cloudinary"
	"birthdayadmin/internal/config"
	"birthdayadmin/internal/dashboard"
	"birthdayadmin/internal/gateway"
	"birthdayadmin/internal/httpmiddleware"
	"birthdayadmin/internal/logging"
	"birthdayadmin/internal/store"
	"birthdayadmin/internal/web"
)

func main() {
	cfg, warnings := config.Load()

	logger := logging.Console(cfg.LogLevel)
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
		logger = logging.New(os.Stdout, cfg.LogLevel)
	}
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func run(cfg config.App, logger zerolog.Logger) error {
	api := gateway.New(cfg.APIBaseURL, cfg.GatewayTimeout)
	logger.Info().Str("api", api.BaseURL).Msg("birthdays api configured")

	opts := dashboard.Options{
		NotifyTimeout: cfg.NotifyTimeout,
		Logger:        logger,
	}
	if cfg.CloudinaryConfigured() {
		opts.Photos = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		logger.Info().Msg("cloudinary not configured, photos stay inline")
	}

	var (
		redisClient *store.Redis
		limiter     httpmiddleware.Limiter
	)
	switch cfg.RateLimitBackend {
	case "redis":
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "", cfg.RateLimitPerMin)
	default:
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	reg := web.NewRegistry(func() *dashboard.Session {
		return dashboard.New(api, opts)
	}, cfg.SessionIdleTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		reg.Run(ctx, time.Minute)
	}()

	h := web.NewHandler(reg, api, web.Options{
		Redis:         redisClient,
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	r := web.NewRouter(h, httpmiddleware.RateLimit(limiter, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			stop()
			<-janitorDone
			return err
		}
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced shutdown")
	}
	stop()
	<-janitorDone

	logger.Info().Msg("server exited")
	return nil
}
