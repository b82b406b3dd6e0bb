package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/internal/stream"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ValidationError marks a rejected trade request; the API maps it to the
// {state: "error", message} envelope with a 400 status.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsertTradeRequest is the validated write path's input.
type InsertTradeRequest struct {
	Stock     string
	Operation string
	Quantity  int64
	Amount    decimal.Decimal
	Coin      string
	Date      string
}

// TradeService owns the trade write path: validation, normalization,
// the immutable trade record and its INSERT change event.
type TradeService struct {
	store     storage.Store
	publisher stream.Publisher
	log       *zap.Logger
}

func NewTradeService(store storage.Store, publisher stream.Publisher, log *zap.Logger) *TradeService {
	return &TradeService{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// Insert validates and persists one trade, publishes its INSERT event
// and returns the generated request id. The trade record is immutable
// from this point on; all derived aggregates flow from the event.
func (s *TradeService) Insert(ctx context.Context, req InsertTradeRequest) (string, error) {
	if err := validate(req); err != nil {
		metrics.TradesInserted.WithLabelValues(strings.ToUpper(req.Operation), "rejected").Inc()
		return "", err
	}

	operation := strings.ToUpper(req.Operation)
	date := req.Date
	if date == "" {
		date = time.Now().UTC().Format(time.RFC3339)
	}

	requestID := uuid.NewString()
	trade := domain.Trade{
		Stock:    strings.ToUpper(req.Stock),
		Type:     domain.TradeType(operation, requestID),
		Quantity: req.Quantity,
		Amount:   req.Amount,
		Total:    req.Amount.Mul(decimal.NewFromInt(req.Quantity)),
		Coin:     strings.ToUpper(req.Coin),
		Date:     date,
	}

	if err := s.store.PutTrade(ctx, trade); err != nil {
		metrics.TradesInserted.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("failed to store trade: %w", err)
	}

	event := stream.Event{
		Name:     stream.Insert,
		Keys:     domain.Key{Stock: trade.Stock, Type: trade.Type},
		NewImage: trade.Item(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// The record exists but its event was lost; the aggregates only
		// catch up when the trade is republished (see replay).
		metrics.TradesInserted.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("failed to publish trade event: %w", err)
	}

	metrics.TradesInserted.WithLabelValues(operation, "success").Inc()
	s.log.Info("trade inserted",
		zap.String("stock", trade.Stock),
		zap.String("type", trade.Type),
		zap.Int64("quantity", trade.Quantity),
		zap.String("amount", trade.Amount.String()))

	return requestID, nil
}

// Replay republishes the INSERT event of every stored trade so the
// pipeline can rebuild the derived aggregates. An empty stock replays
// everything.
func (s *TradeService) Replay(ctx context.Context, stock string) (int, error) {
	trades, err := s.store.Trades(ctx, strings.ToUpper(stock))
	if err != nil {
		return 0, fmt.Errorf("failed to list trades: %w", err)
	}

	for i, trade := range trades {
		event := stream.Event{
			Name:     stream.Insert,
			Keys:     domain.Key{Stock: trade.Stock, Type: trade.Type},
			NewImage: trade.Item(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			return i, fmt.Errorf("failed to republish trade %s: %w", trade.Type, err)
		}
	}

	s.log.Info("trades replayed",
		zap.String("stock", stock),
		zap.Int("count", len(trades)))

	return len(trades), nil
}

func validate(req InsertTradeRequest) error {
	if strings.TrimSpace(req.Stock) == "" {
		return &ValidationError{Message: "stock is required"}
	}

	operation := strings.ToUpper(req.Operation)
	if operation != domain.OperationBuy && operation != domain.OperationSell {
		return &ValidationError{Message: "operation must be BUY or SELL"}
	}

	if req.Quantity <= 0 {
		return &ValidationError{Message: "quantity must be a positive integer"}
	}

	if req.Amount.Sign() <= 0 {
		return &ValidationError{Message: "amount must be positive"}
	}

	if strings.TrimSpace(req.Coin) == "" {
		return &ValidationError{Message: "coin is required"}
	}

	return nil
}
