package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/hcserver/accounts/docs"
	"github.com/hcserver/accounts/internal/api/handler"
	"github.com/hcserver/accounts/internal/api/middleware"
	"github.com/hcserver/accounts/internal/core/ports"
)

// Deps holds everything the router needs from the outside.
type Deps struct {
	Auth   ports.AuthService
	Users  ports.UserService
	Probes []handler.Probe
	Log    zerolog.Logger

	// Registerer and Gatherer back the HTTP metrics and /metrics. They
	// default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "accounts",
		Registerer: d.Registerer,
	}))

	authHandler := handler.NewAuthHandler(d.Auth)
	userHandler := handler.NewUserHandler(d.Users)
	session := middleware.Session(d.Auth)

	// --- Session routes ---
	e.POST("/login", authHandler.Login)
	e.POST("/users/login", authHandler.Login)
	e.POST("/users/logout", authHandler.Logout, session)

	// --- User routes ---
	e.POST("/users", userHandler.Create)
	e.POST("/users/", userHandler.Create)
	e.GET("/users/:username", userHandler.Get, session)
	e.PUT("/users", userHandler.Update, session)
	e.DELETE("/users", userHandler.Delete, session)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler(d.Probes...)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: d.Gatherer,
	}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger emits one structured line per request. The session token is
// never logged; it travels in the header or the tokenId query parameter, so
// only the path is recorded.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
