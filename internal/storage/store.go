package storage

import (
	"context"
	"errors"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
)

// ErrNotFound is returned by point reads when no record exists under the
// requested (stock, type) key.
var ErrNotFound = errors.New("record not found")

// AddResult is the outcome of an atomic increment on a TOTAL record.
type AddResult struct {
	Total domain.Total
	// Created reports whether the increment created the record.
	Created bool
	// Applied is false when a dedup id was supplied and the trade had
	// already been folded in; Total then holds the unchanged image.
	Applied bool
}

// Store is the keyed aggregate store: point writes, point reads and an
// atomic increment-with-default, all keyed by (stock, type). Trade
// records are immutable once written; aggregates are overwritten.
type Store interface {
	PutTrade(ctx context.Context, trade domain.Trade) error

	// AddToTotal atomically folds the signed delta into the stock's
	// TOTAL record, defaulting missing quantity/amount to zero, and
	// returns the post-update image. Coin is overwritten, not summed.
	// A non-empty dedupID makes the increment conditional on the trade
	// id not having been folded in before.
	AddToTotal(ctx context.Context, delta domain.Total, dedupID string) (AddResult, error)

	PutMeanPrice(ctx context.Context, price domain.MeanPrice) error
	PutAverage(ctx context.Context, average domain.Average) error

	GetTotal(ctx context.Context, stock string) (domain.Total, error)
	GetMeanPrice(ctx context.Context, stock string) (domain.MeanPrice, error)
	GetAverage(ctx context.Context, stock string) (domain.Average, error)

	// Trades lists stored trade records, newest last. An empty stock
	// lists trades for every stock (used by replay).
	Trades(ctx context.Context, stock string) ([]domain.Trade, error)
}
