package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(app *fiber.App, handler *Handler) {
	// Global middlewares
	app.Use(RequestID())
	app.Use(ErrorHandler())

	// Health checks (no rate limiting)
	app.Get("/health", handler.HealthCheck)
	app.Get("/ready", handler.ReadinessCheck)

	// Prometheus metrics endpoint (no rate limiting)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Swagger documentation (no rate limiting)
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 - rate limited and measured
	v1 := app.Group("/api/v1")
	v1.Use(RateLimiter())
	v1.Use(PrometheusMiddleware())

	// Stock routes
	stock := v1.Group("/stock")
	stock.Post("/", handler.InsertStock)
	stock.Get("/:stock/position", handler.GetPosition)
	stock.Get("/:stock/total", handler.GetTotal)
	stock.Get("/:stock/average", handler.GetAverage)
	stock.Get("/:stock/meanprice", handler.GetMeanPrice)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(BasicAuth())
	admin.Post("/replay", handler.Replay)
	admin.Delete("/cache/:pattern", handler.InvalidateCache)
	admin.Get("/stats", handler.GetSystemStats)
}

func BasicAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth != "Basic YWRtaW46c2VjcmV0" {
			return c.Status(fiber.StatusUnauthorized).JSON(errorEnvelope("unauthorized"))
		}
		return c.Next()
	}
}
