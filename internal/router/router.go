package router

import (
	"fmt"

	"github.com/anonto42/nano-midea/socialgraph/internal/handlers"
	"github.com/anonto42/nano-midea/socialgraph/internal/middleware"
	"github.com/anonto42/nano-midea/socialgraph/internal/monitoring"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/anonto42/nano-midea/socialgraph/pkg/cache"
	"github.com/anonto42/nano-midea/socialgraph/pkg/config"
	"github.com/anonto42/nano-midea/socialgraph/pkg/firebase"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
	"github.com/anonto42/nano-midea/socialgraph/validators"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var log = logger.For("router")

// Dependencies are the connections and settings the routes are built from. Redis and
// Firebase are optional.
type Dependencies struct {
	Postgres *gorm.DB
	Posts    repositories.PostRepository
	Redis    *redis.Client
	Firebase *firebase.App
	Config   *config.Config
	Checks   map[string]handlers.Pinger
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(eMiddleware.RequestIDWithConfig(eMiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger())
	e.Use(monitoring.Middleware())
	e.Validator = validators.NewValidator()
	log.Info("Global middleware configured.")
}

// SetupRoutes migrates the relational schema and registers every route.
func SetupRoutes(e *echo.Echo, deps Dependencies) error {
	if err := repositories.AutoMigrate(deps.Postgres); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("PostgreSQL auto-migrations completed.")

	e.GET("/health", handlers.HealthCheck(deps.Checks))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Repositories ---
	pgdb := deps.Postgres
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	relationRepo := repositories.NewPostgresRelationRepository(pgdb)
	notificationRepo := repositories.NewPostgresNotificationRepository(pgdb)
	likeRepo := repositories.NewPostgresLikeRepository(pgdb)
	commentRepo := repositories.NewPostgresCommentRepository(pgdb)
	commentLikeRepo := repositories.NewPostgresCommentLikeRepository(pgdb)

	// --- Services ---
	var pusher services.Pusher
	var verifier handlers.TokenVerifier
	if deps.Firebase != nil {
		if p := firebase.NewPusher(deps.Firebase.Messaging); p != nil {
			pusher = p
		}
		if deps.Firebase.AuthClient != nil {
			verifier = deps.Firebase.AuthClient
		}
	}
	unread := cache.NewUnreadCounter(deps.Redis, deps.Config.Redis.UnreadTTL)

	notifications := services.NewNotificationService(notificationRepo, relationRepo, userRepo, unread, pusher)
	relations := services.NewRelationService(pgdb, userRepo, relationRepo, notifications)
	users := services.NewUserService(pgdb, userRepo, relationRepo, relations, notifications)
	posts := services.NewPostService(pgdb, deps.Posts, userRepo, likeRepo, commentRepo, relations, notifications)
	comments := services.NewCommentService(pgdb, commentRepo, commentLikeRepo, deps.Posts, userRepo, notifications)

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	handlers.NewAuthHandler(users, verifier, deps.Config.JWT.Secret, deps.Config.JWT.Expiry).RegisterAuthRoutes(authGroup)

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(deps.Config.JWT.Secret))

	handlers.NewUserHandler(users).RegisterProfileRoutes(api)
	handlers.NewRelationHandler(relations).RegisterRelationRoutes(api)
	handlers.NewPostHandler(posts).RegisterPostRoutes(api)
	handlers.NewFeedHandler(posts).RegisterFeedRoutes(api)
	handlers.NewLikeHandler(posts).RegisterLikeRoutes(api)
	handlers.NewCommentHandler(comments).RegisterCommentRoutes(api)
	handlers.NewNotificationHandler(notifications).RegisterNotificationRoutes(api)

	log.WithField("routes", len(e.Routes())).Info("All routes configured.")
	return nil
}
