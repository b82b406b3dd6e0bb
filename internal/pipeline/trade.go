package pipeline

import (
	"context"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/internal/stream"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"go.uber.org/zap"
)

// TradeFilter selects the events the trade ingestion handler consumes:
// freshly inserted trade records only.
var TradeFilter = stream.Filter{
	Names:        []stream.EventName{stream.Insert},
	TypePrefixes: []string{"BUY#", "SELL#"},
}

// TradeHandler folds each newly inserted trade into the stock's running
// TOTAL record and, on success, hands the trade to the completion relay.
type TradeHandler struct {
	store     storage.Store
	publisher stream.Publisher
	relay     *Relay
	dedup     bool
	log       *zap.Logger
}

// NewTradeHandler wires the handler. With dedup enabled the increment is
// conditional on the trade id not having been folded in before;
// disabled, redelivery of the same trade doubles its contribution.
func NewTradeHandler(store storage.Store, publisher stream.Publisher, relay *Relay, dedup bool, log *zap.Logger) *TradeHandler {
	return &TradeHandler{
		store:     store,
		publisher: publisher,
		relay:     relay,
		dedup:     dedup,
		log:       log,
	}
}

func (h *TradeHandler) Handle(ctx context.Context, event stream.Event) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HandlerDuration.WithLabelValues("trade_ingestion"))

	image := event.NewImage
	if !domain.IsTrade(event.Keys.Type) {
		return &MalformedEventError{Key: event.Keys, Field: "trade type"}
	}
	if image.Quantity == nil {
		return &MalformedEventError{Key: event.Keys, Field: "quantity"}
	}
	if image.Amount == nil {
		return &MalformedEventError{Key: event.Keys, Field: "amount"}
	}

	quantity := *image.Quantity
	amount := *image.Amount
	if domain.IsSell(event.Keys.Type) {
		quantity = -quantity
		amount = amount.Neg()
	}

	dedupID := ""
	if h.dedup {
		dedupID = domain.TradeID(event.Keys.Type)
	}

	delta := domain.Total{
		Stock:    event.Keys.Stock,
		Quantity: quantity,
		Amount:   amount,
		Coin:     image.Coin,
	}

	result, err := h.store.AddToTotal(ctx, delta, dedupID)
	if err != nil {
		return &StoreWriteError{Op: "add_total", Key: event.Keys, Err: err}
	}

	if !result.Applied {
		// Duplicate delivery. The increment committed on an earlier
		// attempt that may have failed before emitting the TOTAL event,
		// so re-emit the current image and re-invoke the calculator
		// rather than ack silently. Repeated images are idempotent for
		// both downstream handlers.
		h.log.Info("duplicate trade delivery",
			zap.String("key", event.Keys.String()))

		totalEvent := stream.Event{
			Name:     stream.Modify,
			Keys:     domain.Key{Stock: event.Keys.Stock, Type: domain.TypeTotal},
			NewImage: result.Total.Item(),
		}
		if err := h.publisher.Publish(ctx, totalEvent); err != nil {
			return &StoreWriteError{Op: "publish_total", Key: totalEvent.Keys, Err: err}
		}

		h.relay.Invoke(image)
		return nil
	}

	// The totals update re-enters the change stream for the average
	// price calculator.
	name := stream.Modify
	if result.Created {
		name = stream.Insert
	}
	totalEvent := stream.Event{
		Name:     name,
		Keys:     domain.Key{Stock: event.Keys.Stock, Type: domain.TypeTotal},
		NewImage: result.Total.Item(),
	}
	if err := h.publisher.Publish(ctx, totalEvent); err != nil {
		return &StoreWriteError{Op: "publish_total", Key: totalEvent.Keys, Err: err}
	}

	h.log.Info("trade folded into total",
		zap.String("key", event.Keys.String()),
		zap.Int64("quantity", result.Total.Quantity),
		zap.String("amount", result.Total.Amount.String()))

	// Success-only hand-off of the original trade payload; the relay's
	// outcome never feeds back into this handler.
	h.relay.Invoke(image)

	return nil
}
