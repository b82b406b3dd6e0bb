package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jeovahfialho/stock-tracker/internal/service"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/internal/storage/cache"
	"github.com/jeovahfialho/stock-tracker/internal/storage/postgres"
	"github.com/jeovahfialho/stock-tracker/pkg/logger"
	"go.uber.org/zap"
)

type Handler struct {
	db              *postgres.DB
	cacheService    *cache.RedisCache
	tradeService    *service.TradeService
	positionService *service.PositionService
}

func NewHandler(
	db *postgres.DB,
	cacheService *cache.RedisCache,
	tradeService *service.TradeService,
	positionService *service.PositionService,
) *Handler {
	return &Handler{
		db:              db,
		cacheService:    cacheService,
		tradeService:    tradeService,
		positionService: positionService,
	}
}

// InsertStock is the validated trade write path. Everything downstream
// (totals, mean, average) is derived asynchronously from the change
// event this write produces.
func (h *Handler) InsertStock(c *fiber.Ctx) error {
	var req InsertStockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("invalid request body"))
	}

	requestID, err := h.tradeService.Insert(c.Context(), service.InsertTradeRequest{
		Stock:     req.Stock,
		Operation: req.Operation,
		Quantity:  req.Quantity,
		Amount:    req.Amount,
		Coin:      req.Coin,
		Date:      req.Date,
	})
	if err != nil {
		var validation *service.ValidationError
		if errors.As(err, &validation) {
			return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope(validation.Message))
		}

		logger.WithContext(c.Context()).Error("failed to insert trade",
			zap.String("stock", req.Stock),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to insert trade"))
	}

	return c.JSON(InsertStockResponse{RequestID: requestID})
}

func (h *Handler) GetPosition(c *fiber.Ctx) error {
	stock := strings.ToUpper(c.Params("stock"))
	if stock == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("stock is required"))
	}

	position, err := h.positionService.GetPosition(c.Context(), stock)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("no records for stock " + stock))
	}
	if err != nil {
		logger.WithContext(c.Context()).Error("failed to read position",
			zap.String("stock", stock),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to read position"))
	}

	return c.JSON(position)
}

func (h *Handler) GetTotal(c *fiber.Ctx) error {
	stock := strings.ToUpper(c.Params("stock"))

	total, err := h.positionService.GetTotal(c.Context(), stock)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("no totals for stock " + stock))
	}
	if err != nil {
		logger.WithContext(c.Context()).Error("failed to read total",
			zap.String("stock", stock),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to read total"))
	}

	return c.JSON(total)
}

func (h *Handler) GetAverage(c *fiber.Ctx) error {
	stock := strings.ToUpper(c.Params("stock"))

	average, err := h.positionService.GetAverage(c.Context(), stock)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("no average for stock " + stock))
	}
	if err != nil {
		logger.WithContext(c.Context()).Error("failed to read average",
			zap.String("stock", stock),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to read average"))
	}

	return c.JSON(average)
}

func (h *Handler) GetMeanPrice(c *fiber.Ctx) error {
	stock := strings.ToUpper(c.Params("stock"))

	price, err := h.positionService.GetMeanPrice(c.Context(), stock)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("no mean price for stock " + stock))
	}
	if err != nil {
		logger.WithContext(c.Context()).Error("failed to read mean price",
			zap.String("stock", stock),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to read mean price"))
	}

	return c.JSON(price)
}

func (h *Handler) Replay(c *fiber.Ctx) error {
	stock := strings.ToUpper(c.Query("stock"))

	count, err := h.tradeService.Replay(c.Context(), stock)
	if err != nil {
		logger.WithContext(c.Context()).Error("failed to replay trades",
			zap.String("stock", stock),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to replay trades"))
	}

	return c.JSON(ReplayResponse{Stock: stock, Replayed: count})
}

func (h *Handler) InvalidateCache(c *fiber.Ctx) error {
	pattern := c.Params("pattern")
	if pattern == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("pattern is required"))
	}

	if h.cacheService == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorEnvelope("cache not available"))
	}

	if err := h.cacheService.DeletePattern(c.Context(), pattern); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("failed to invalidate cache"))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) GetSystemStats(c *fiber.Ctx) error {
	stats := h.db.Stats()

	return c.JSON(SystemStatsResponse{
		Database: DatabaseStats{
			ActiveConnections: stats.AcquiredConns(),
			IdleConnections:   stats.IdleConns(),
			TotalConnections:  stats.TotalConns(),
			WaitCount:         stats.EmptyAcquireCount(),
			WaitDuration:      stats.AcquireDuration().String(),
		},
	})
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Timestamp: time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceHealth)

	dbStart := time.Now()
	if err := h.db.HealthCheck(ctx); err != nil {
		services["database"] = ServiceHealth{
			Status: "unhealthy",
			Error:  err.Error(),
		}
	} else {
		services["database"] = ServiceHealth{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	redisStart := time.Now()
	if err := h.cacheService.HealthCheck(ctx); err != nil {
		services["redis"] = ServiceHealth{
			Status: "unhealthy",
			Error:  err.Error(),
		}
	} else {
		services["redis"] = ServiceHealth{
			Status:  "healthy",
			Latency: time.Since(redisStart).String(),
		}
	}

	status := "ready"
	for _, svc := range services {
		if svc.Status != "healthy" {
			status = "not_ready"
			break
		}
	}

	response := HealthResponse{
		Status:    status,
		Version:   "1.0.0",
		Timestamp: time.Now(),
		Services:  services,
	}

	if status != "ready" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}

	return c.JSON(response)
}
