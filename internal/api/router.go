package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoswagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/nimbuslabs/identity-system/docs"
	"github.com/nimbuslabs/identity-system/internal/api/handler"
	"github.com/nimbuslabs/identity-system/internal/api/middleware"
	"github.com/nimbuslabs/identity-system/internal/core/ports"
	"github.com/nimbuslabs/identity-system/internal/core/service"
	mongodb "github.com/nimbuslabs/identity-system/internal/infrastructure/db/mongo"
	redisdb "github.com/nimbuslabs/identity-system/internal/infrastructure/db/redis"
)

// Deps carries the shared infrastructure the router wires together.
type Deps struct {
	Mongo *mongo.Database
	Redis *redis.Client
	Codec *service.TokenCodec
	Sink  ports.SessionSink
	Log   zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("identity"))

	// --- Dependencies ---
	store := mongodb.NewUserRepository(deps.Mongo)
	cache := redisdb.NewUserCache(deps.Redis, 0)
	sessions := service.NewSessionService(store, deps.Codec)
	authHandler := handler.NewAuthHandler(sessions, cache, deps.Sink, deps.Codec.AccessTTL(), deps.Codec.RefreshTTL())
	guard := middleware.Auth(deps.Codec)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/refresh", authHandler.Refresh)
	e.POST("/auth/logout", authHandler.Logout, guard)
	e.PUT("/auth/password", authHandler.ChangePassword, guard)
	e.GET("/auth/me", authHandler.Me, guard)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Observability & docs ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoswagger.WrapHandler)

	return e
}
