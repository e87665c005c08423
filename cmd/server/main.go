package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/api"
	"github.com/Efasquel/tracker/internal/auth"
	"github.com/Efasquel/tracker/internal/config"
	"github.com/Efasquel/tracker/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.NewStore(connectCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatalf("failed to init %s storage: %v", cfg.DBType, err)
	}

	tokens := auth.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL)
	app := api.NewApplication(logger, store, tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app, cfg.StoreTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Server running on :%s (storage=%s, env=%s)", cfg.Port, cfg.DBType, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		logger.Errorf("failed to close storage: %v", err)
	}
	logger.Info("Server exited")
}
