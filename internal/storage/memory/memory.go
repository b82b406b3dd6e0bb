// Package memory provides an in-memory storage.Store used by tests and
// local development. All operations are guarded by a single mutex, which
// stands in for the real store's single-key atomicity.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
)

type Store struct {
	mu        sync.Mutex
	trades    map[domain.Key]domain.Trade
	totals    map[string]domain.Total
	means     map[string]domain.MeanPrice
	averages  map[string]domain.Average
	processed map[string]struct{}
	order     []domain.Key

	// FailWrites makes every mutation fail, simulating an unavailable
	// store.
	FailWrites bool
}

func NewStore() *Store {
	return &Store{
		trades:    make(map[domain.Key]domain.Trade),
		totals:    make(map[string]domain.Total),
		means:     make(map[string]domain.MeanPrice),
		averages:  make(map[string]domain.Average),
		processed: make(map[string]struct{}),
	}
}

func (s *Store) PutTrade(ctx context.Context, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("store unavailable")
	}

	key := domain.Key{Stock: trade.Stock, Type: trade.Type}
	if _, ok := s.trades[key]; ok {
		return fmt.Errorf("trade %s already exists", key)
	}

	s.trades[key] = trade
	s.order = append(s.order, key)
	return nil
}

func (s *Store) AddToTotal(ctx context.Context, delta domain.Total, dedupID string) (storage.AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return storage.AddResult{}, fmt.Errorf("store unavailable")
	}

	if dedupID != "" {
		dedupKey := delta.Stock + "#" + dedupID
		if _, ok := s.processed[dedupKey]; ok {
			return storage.AddResult{Total: s.totals[delta.Stock]}, nil
		}
		s.processed[dedupKey] = struct{}{}
	}

	total, ok := s.totals[delta.Stock]
	total.Stock = delta.Stock
	total.Quantity += delta.Quantity
	total.Amount = total.Amount.Add(delta.Amount)
	total.Coin = delta.Coin
	s.totals[delta.Stock] = total

	return storage.AddResult{Total: total, Created: !ok, Applied: true}, nil
}

func (s *Store) PutMeanPrice(ctx context.Context, price domain.MeanPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("store unavailable")
	}

	s.means[price.Stock] = price
	return nil
}

func (s *Store) PutAverage(ctx context.Context, average domain.Average) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("store unavailable")
	}

	s.averages[average.Stock] = average
	return nil
}

func (s *Store) GetTotal(ctx context.Context, stock string) (domain.Total, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, ok := s.totals[stock]
	if !ok {
		return domain.Total{}, storage.ErrNotFound
	}
	return total, nil
}

func (s *Store) GetMeanPrice(ctx context.Context, stock string) (domain.MeanPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.means[stock]
	if !ok {
		return domain.MeanPrice{}, storage.ErrNotFound
	}
	return price, nil
}

func (s *Store) GetAverage(ctx context.Context, stock string) (domain.Average, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	average, ok := s.averages[stock]
	if !ok {
		return domain.Average{}, storage.ErrNotFound
	}
	return average, nil
}

func (s *Store) Trades(ctx context.Context, stock string) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []domain.Trade
	for _, key := range s.order {
		if stock != "" && key.Stock != stock {
			continue
		}
		trades = append(trades, s.trades[key])
	}

	return trades, nil
}
