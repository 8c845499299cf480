package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/anonto42/nano-midea/socialgraph/internal/handlers"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/router"
	"github.com/anonto42/nano-midea/socialgraph/pkg/config"
	"github.com/anonto42/nano-midea/socialgraph/pkg/firebase"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger.InitLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB()

	postRepo := repositories.NewMongoPostRepository(db.MongoDB)
	if err := postRepo.EnsureIndexes(ctx); err != nil {
		logrus.Fatalf("Failed to create post indexes: %v", err)
	}

	var firebaseApp *firebase.App
	if cfg.Firebase.CredentialsPath != "" {
		firebaseApp, err = firebase.InitFirebase(ctx, cfg.Firebase.CredentialsPath)
		if err != nil {
			logrus.Fatalf("Failed to initialize Firebase: %v", err)
		}
	} else {
		logrus.Warn("FIREBASE_CREDENTIALS_PATH not set, Firebase login and push are disabled")
	}

	checks := map[string]handlers.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.Postgres.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"mongo": func(ctx context.Context) error {
			return db.Mongo.Ping(ctx, nil)
		},
	}
	if db.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return db.Redis.Ping(ctx).Err()
		}
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	router.SetupMiddleware(e)
	err = router.SetupRoutes(e, router.Dependencies{
		Postgres: db.Postgres,
		Posts:    postRepo,
		Redis:    db.Redis,
		Firebase: firebaseApp,
		Config:   cfg,
		Checks:   checks,
	})
	if err != nil {
		logrus.Fatalf("Failed to set up routes: %v", err)
	}

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server error: %v", err)
		}
	}()
	logrus.WithField("port", cfg.Server.Port).Info("Server started")

	<-ctx.Done()
	logrus.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
