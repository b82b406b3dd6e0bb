package pipeline

import (
	"context"
	"time"

	"github.com/jeovahfialho/stock-tracker/internal/stream"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"go.uber.org/zap"
)

// Wrap adapts a handler to the at-least-once delivery contract: each
// invocation runs under its own wall-clock budget, non-retryable errors
// are logged and acknowledged (redelivery would reproduce the same
// input), and retryable errors propagate so the delivery stays pending.
func Wrap(name string, timeout time.Duration, handler stream.Handler, log *zap.Logger) stream.Handler {
	return func(ctx context.Context, event stream.Event) error {
		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := handler(hctx, event)
		switch {
		case err == nil:
			metrics.RecordEvent(name, "success")
			return nil

		case Retryable(err):
			metrics.RecordEvent(name, "retry")
			log.Warn("handler failed, awaiting redelivery",
				zap.String("handler", name),
				zap.String("key", event.Keys.String()),
				zap.Error(err))
			return err

		default:
			metrics.RecordEvent(name, "dropped")
			log.Error("event dropped",
				zap.String("handler", name),
				zap.String("key", event.Keys.String()),
				zap.Error(err))
			return nil
		}
	}
}
