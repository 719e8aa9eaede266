package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/http/middleware"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/service/enqueue"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	tenantsRepo := repository.NewTenantsRepository(mysqlDB)
	destinationsRepo := repository.NewDestinationsRepository(mysqlDB)
	deliveriesRepo := repository.NewDeliveriesRepository(mysqlDB)
	attemptsRepo := repository.NewAttemptsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	chDeliveriesRepo := repository.NewCHDeliveriesRepository(clickhouseDB)

	// services
	enqueueSvc := enqueue.New(mysqlDB, deliveriesRepo, destinationsRepo, outboxRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(tenantsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:tenant:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/destinations", createDestinationHandler(destinationsRepo))
	v1.GET("/destinations", listDestinationsHandler(destinationsRepo))
	v1.PATCH("/destinations/:id", updateDestinationHandler(destinationsRepo))
	v1.POST("/destinations/:id/rotate", rotateSecretHandler(destinationsRepo))
	v1.POST("/events", publishEventHandler(enqueueSvc))
	v1.GET("/deliveries", listDeliveriesHandler(chDeliveriesRepo))
	v1.GET("/deliveries/:id", getDeliveryHandler(deliveriesRepo, attemptsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
