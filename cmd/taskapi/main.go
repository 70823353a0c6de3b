package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deppfellow/go-taskapi/internal/config"
	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/handler"
	"github.com/deppfellow/go-taskapi/internal/logger"
	"github.com/deppfellow/go-taskapi/internal/middleware"
	"github.com/deppfellow/go-taskapi/internal/repository"
	"github.com/deppfellow/go-taskapi/internal/router"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/deppfellow/go-taskapi/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	loggerService := logger.NewLoggerService(cfg.Observability)
	defer loggerService.Shutdown()

	appLogger := logger.NewLoggerWithService(cfg.Observability, loggerService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Primary.Env != "local" {
		if err := database.Migrate(ctx, &appLogger, cfg); err != nil {
			appLogger.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	srv, err := server.New(ctx, cfg, &appLogger, loggerService)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to initialize server")
	}

	services, err := service.NewService(srv, repository.NewRepositories())
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to create services")
	}

	r, err := router.NewRouter(srv, handler.NewHandlers(srv, services), middleware.NewMiddlewares(srv))
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to build router")
	}

	srv.SetupHTTPServer(r)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited properly")
}
