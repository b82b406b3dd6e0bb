package pipeline

import (
	"context"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/internal/stream"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MeanPriceHandler recomputes the last-trade mean from a single trade
// payload: value = amount / quantity. It is deliberately not
// position-aware and may diverge from the average cost basis.
type MeanPriceHandler struct {
	store     storage.Store
	publisher stream.Publisher
	log       *zap.Logger
}

func NewMeanPriceHandler(store storage.Store, publisher stream.Publisher, log *zap.Logger) *MeanPriceHandler {
	return &MeanPriceHandler{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

func (h *MeanPriceHandler) Handle(ctx context.Context, trade domain.Item) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HandlerDuration.WithLabelValues("mean_price"))

	key := domain.Key{Stock: trade.Stock, Type: domain.TypeMeanPrice}
	if trade.Stock == "" {
		return &MalformedEventError{Key: key, Field: "stock"}
	}
	if trade.Quantity == nil {
		return &MalformedEventError{Key: key, Field: "quantity"}
	}
	if trade.Amount == nil {
		return &MalformedEventError{Key: key, Field: "amount"}
	}

	if *trade.Quantity == 0 {
		return &InvalidQuantityError{Stock: trade.Stock}
	}

	mean := trade.Amount.Div(decimal.NewFromInt(*trade.Quantity))

	price := domain.MeanPrice{Stock: trade.Stock, Value: mean}
	if err := h.store.PutMeanPrice(ctx, price); err != nil {
		return &StoreWriteError{Op: "put_meanprice", Key: key, Err: err}
	}

	event := stream.Event{Name: stream.Modify, Keys: key, NewImage: price.Item()}
	if err := h.publisher.Publish(ctx, event); err != nil {
		return &StoreWriteError{Op: "publish_meanprice", Key: key, Err: err}
	}

	h.log.Info("mean price updated",
		zap.String("stock", trade.Stock),
		zap.String("value", mean.String()))

	return nil
}
