package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/internal/storage/cache"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"go.uber.org/zap"
)

// Position is the combined read model for one stock: the running totals
// plus both derived prices. Aggregates that have not been computed yet
// are nil.
type Position struct {
	Stock     string            `json:"stock"`
	Total     *domain.Total     `json:"total,omitempty"`
	Average   *domain.Average   `json:"average,omitempty"`
	MeanPrice *domain.MeanPrice `json:"mean_price,omitempty"`
}

// PositionService serves reads of the derived aggregates through a
// short-TTL cache; aggregates are eventually consistent, so staleness
// within the TTL is acceptable by design of the pipeline.
type PositionService struct {
	store    storage.Store
	cache    *cache.RedisCache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewPositionService wires the reads. cache may be nil; every read then
// goes to the store.
func NewPositionService(store storage.Store, cacheService *cache.RedisCache, cacheTTL time.Duration, log *zap.Logger) *PositionService {
	return &PositionService{
		store:    store,
		cache:    cacheService,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

func (s *PositionService) GetTotal(ctx context.Context, stock string) (domain.Total, error) {
	var total domain.Total
	if s.fromCache(ctx, totalKey(stock), &total) {
		return total, nil
	}

	total, err := s.store.GetTotal(ctx, stock)
	if err != nil {
		return domain.Total{}, err
	}

	s.toCache(ctx, totalKey(stock), total)
	return total, nil
}

func (s *PositionService) GetAverage(ctx context.Context, stock string) (domain.Average, error) {
	var average domain.Average
	if s.fromCache(ctx, averageKey(stock), &average) {
		return average, nil
	}

	average, err := s.store.GetAverage(ctx, stock)
	if err != nil {
		return domain.Average{}, err
	}

	s.toCache(ctx, averageKey(stock), average)
	return average, nil
}

func (s *PositionService) GetMeanPrice(ctx context.Context, stock string) (domain.MeanPrice, error) {
	var price domain.MeanPrice
	if s.fromCache(ctx, meanPriceKey(stock), &price) {
		return price, nil
	}

	price, err := s.store.GetMeanPrice(ctx, stock)
	if err != nil {
		return domain.MeanPrice{}, err
	}

	s.toCache(ctx, meanPriceKey(stock), price)
	return price, nil
}

// GetPosition assembles the full read model. A stock with no records at
// all yields storage.ErrNotFound.
func (s *PositionService) GetPosition(ctx context.Context, stock string) (Position, error) {
	position := Position{Stock: stock}

	total, err := s.GetTotal(ctx, stock)
	switch {
	case err == nil:
		position.Total = &total
	case !errors.Is(err, storage.ErrNotFound):
		return Position{}, fmt.Errorf("failed to read total: %w", err)
	}

	average, err := s.GetAverage(ctx, stock)
	switch {
	case err == nil:
		position.Average = &average
	case !errors.Is(err, storage.ErrNotFound):
		return Position{}, fmt.Errorf("failed to read average: %w", err)
	}

	price, err := s.GetMeanPrice(ctx, stock)
	switch {
	case err == nil:
		position.MeanPrice = &price
	case !errors.Is(err, storage.ErrNotFound):
		return Position{}, fmt.Errorf("failed to read mean price: %w", err)
	}

	if position.Total == nil && position.Average == nil && position.MeanPrice == nil {
		return Position{}, storage.ErrNotFound
	}

	return position, nil
}

func (s *PositionService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}

	if err := s.cache.Get(ctx, key, dest); err != nil {
		metrics.RecordCacheMiss()
		return false
	}

	metrics.RecordCacheHit()
	return true
}

func (s *PositionService) toCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.Debug("failed to cache position read",
			zap.String("key", key),
			zap.Error(err))
	}
}

func totalKey(stock string) string {
	return fmt.Sprintf("position:%s:total", stock)
}

func averageKey(stock string) string {
	return fmt.Sprintf("position:%s:average", stock)
}

func meanPriceKey(stock string) string {
	return fmt.Sprintf("position:%s:meanprice", stock)
}
