package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"go.uber.org/zap"
)

// Relay is the completion hand-off between the trade ingestion handler
// and the mean price calculator: asynchronous, fire-and-forget from the
// caller's point of view, with its own bounded retry so failures are
// observable without rolling back or retrying the trigger.
type Relay struct {
	calculator *MeanPriceHandler
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	log        *zap.Logger
	wg         sync.WaitGroup
}

func NewRelay(calculator *MeanPriceHandler, maxRetries int, backoff, timeout time.Duration, log *zap.Logger) *Relay {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{
		calculator: calculator,
		maxRetries: maxRetries,
		backoff:    backoff,
		timeout:    timeout,
		log:        log,
	}
}

// Invoke dispatches the trade image to the mean price calculator and
// returns immediately.
func (r *Relay) Invoke(trade domain.Item) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.deliver(trade)
	}()
}

func (r *Relay) deliver(trade domain.Item) {
	backoff := r.backoff

	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.calculator.Handle(ctx, trade)
		cancel()

		if err == nil {
			metrics.RecordRelay("success")
			return
		}

		if !Retryable(err) {
			metrics.RecordRelay("dropped")
			r.log.Warn("mean price invocation dropped",
				zap.String("stock", trade.Stock),
				zap.Error(err))
			return
		}

		if attempt >= r.maxRetries {
			metrics.RecordRelay("failed")
			r.log.Error("mean price invocation exhausted retries",
				zap.String("stock", trade.Stock),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}

// Wait blocks until every in-flight invocation has finished. Used on
// shutdown and in tests.
func (r *Relay) Wait() {
	r.wg.Wait()
}
