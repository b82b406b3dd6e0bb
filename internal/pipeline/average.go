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

// TotalFilter selects the events the average price calculator consumes:
// every insert or update of a TOTAL record.
var TotalFilter = stream.Filter{
	Names:      []stream.EventName{stream.Insert, stream.Modify},
	TypeEquals: domain.TypeTotal,
}

// AverageHandler recomputes the position's average cost basis from the
// TOTAL image: average = amount / quantity. Terminal stage; nothing is
// chained after it.
type AverageHandler struct {
	store     storage.Store
	publisher stream.Publisher
	log       *zap.Logger
}

func NewAverageHandler(store storage.Store, publisher stream.Publisher, log *zap.Logger) *AverageHandler {
	return &AverageHandler{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

func (h *AverageHandler) Handle(ctx context.Context, event stream.Event) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HandlerDuration.WithLabelValues("average_price"))

	image := event.NewImage
	if image.Quantity == nil {
		return &MalformedEventError{Key: event.Keys, Field: "quantity"}
	}
	if image.Amount == nil {
		return &MalformedEventError{Key: event.Keys, Field: "amount"}
	}

	// Position fully closed: the average is undefined and the previous
	// value is left in place.
	if *image.Quantity == 0 {
		return &InvalidQuantityError{Stock: event.Keys.Stock}
	}

	value := image.Amount.Div(decimal.NewFromInt(*image.Quantity))

	average := domain.Average{
		Stock:   event.Keys.Stock,
		Average: value,
		Coin:    image.Coin,
	}

	key := domain.Key{Stock: event.Keys.Stock, Type: domain.TypeAverage}
	if err := h.store.PutAverage(ctx, average); err != nil {
		return &StoreWriteError{Op: "put_average", Key: key, Err: err}
	}

	avgEvent := stream.Event{Name: stream.Modify, Keys: key, NewImage: average.Item()}
	if err := h.publisher.Publish(ctx, avgEvent); err != nil {
		return &StoreWriteError{Op: "publish_average", Key: key, Err: err}
	}

	h.log.Info("average price updated",
		zap.String("stock", event.Keys.Stock),
		zap.String("average", value.String()))

	return nil
}
