package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Store implements storage.Store on top of a single stocks table with
// partition key stock and sort key type.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) PutTrade(ctx context.Context, trade domain.Trade) error {
	timer := metrics.NewTimer()

	query := `
		INSERT INTO stocks (stock, type, quantity, amount, total, coin, trade_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.pool.Exec(ctx, query,
		trade.Stock, trade.Type, trade.Quantity, trade.Amount, trade.Total, trade.Coin, trade.Date)
	if err != nil {
		metrics.RecordStoreOperation("put_trade", "error", timer.Elapsed().Seconds())
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	metrics.RecordStoreOperation("put_trade", "success", timer.Elapsed().Seconds())
	return nil
}

const addToTotalQuery = `
	INSERT INTO stocks (stock, type, quantity, amount, coin)
	VALUES ($1, 'TOTAL', $2, $3, $4)
	ON CONFLICT (stock, type) DO UPDATE SET
		quantity   = COALESCE(stocks.quantity, 0) + EXCLUDED.quantity,
		amount     = COALESCE(stocks.amount, 0) + EXCLUDED.amount,
		coin       = EXCLUDED.coin,
		updated_at = now()
	RETURNING quantity, amount, coin, (xmax = 0) AS created
`

func (s *Store) AddToTotal(ctx context.Context, delta domain.Total, dedupID string) (storage.AddResult, error) {
	timer := metrics.NewTimer()

	result, err := s.addToTotal(ctx, delta, dedupID)
	if err != nil {
		metrics.RecordStoreOperation("add_total", "error", timer.Elapsed().Seconds())
		return storage.AddResult{}, err
	}

	metrics.RecordStoreOperation("add_total", "success", timer.Elapsed().Seconds())
	return result, nil
}

func (s *Store) addToTotal(ctx context.Context, delta domain.Total, dedupID string) (storage.AddResult, error) {
	if dedupID == "" {
		var result storage.AddResult
		result.Applied = true
		result.Total.Stock = delta.Stock

		err := s.db.pool.QueryRow(ctx, addToTotalQuery,
			delta.Stock, delta.Quantity, delta.Amount, delta.Coin).
			Scan(&result.Total.Quantity, &result.Total.Amount, &result.Total.Coin, &result.Created)
		if err != nil {
			return storage.AddResult{}, fmt.Errorf("failed to update total: %w", err)
		}

		return result, nil
	}

	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return storage.AddResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO processed_trades (stock, trade_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		delta.Stock, dedupID)
	if err != nil {
		return storage.AddResult{}, fmt.Errorf("failed to mark trade processed: %w", err)
	}

	var result storage.AddResult
	result.Total.Stock = delta.Stock

	if tag.RowsAffected() == 0 {
		// Trade already folded in; return the current image untouched.
		total, err := s.getTotalTx(ctx, tx, delta.Stock)
		if err != nil {
			return storage.AddResult{}, err
		}
		result.Total = total
		if err := tx.Commit(ctx); err != nil {
			return storage.AddResult{}, fmt.Errorf("failed to commit: %w", err)
		}
		return result, nil
	}

	err = tx.QueryRow(ctx, addToTotalQuery,
		delta.Stock, delta.Quantity, delta.Amount, delta.Coin).
		Scan(&result.Total.Quantity, &result.Total.Amount, &result.Total.Coin, &result.Created)
	if err != nil {
		return storage.AddResult{}, fmt.Errorf("failed to update total: %w", err)
	}
	result.Applied = true

	if err := tx.Commit(ctx); err != nil {
		return storage.AddResult{}, fmt.Errorf("failed to commit: %w", err)
	}

	return result, nil
}

func (s *Store) getTotalTx(ctx context.Context, tx pgx.Tx, stock string) (domain.Total, error) {
	total := domain.Total{Stock: stock}

	err := tx.QueryRow(ctx,
		`SELECT COALESCE(quantity, 0), COALESCE(amount, 0), COALESCE(coin, '')
		 FROM stocks WHERE stock = $1 AND type = 'TOTAL'`, stock).
		Scan(&total.Quantity, &total.Amount, &total.Coin)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Total{Stock: stock, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return domain.Total{}, fmt.Errorf("failed to read total: %w", err)
	}

	return total, nil
}

func (s *Store) PutMeanPrice(ctx context.Context, price domain.MeanPrice) error {
	timer := metrics.NewTimer()

	query := `
		INSERT INTO stocks (stock, type, value)
		VALUES ($1, 'MEANPRICE', $2)
		ON CONFLICT (stock, type) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = now()
	`

	if _, err := s.db.pool.Exec(ctx, query, price.Stock, price.Value); err != nil {
		metrics.RecordStoreOperation("put_meanprice", "error", timer.Elapsed().Seconds())
		return fmt.Errorf("failed to update mean price: %w", err)
	}

	metrics.RecordStoreOperation("put_meanprice", "success", timer.Elapsed().Seconds())
	return nil
}

func (s *Store) PutAverage(ctx context.Context, average domain.Average) error {
	timer := metrics.NewTimer()

	query := `
		INSERT INTO stocks (stock, type, average, coin)
		VALUES ($1, 'AVERAGE', $2, $3)
		ON CONFLICT (stock, type) DO UPDATE SET
			average    = EXCLUDED.average,
			coin       = EXCLUDED.coin,
			updated_at = now()
	`

	if _, err := s.db.pool.Exec(ctx, query, average.Stock, average.Average, average.Coin); err != nil {
		metrics.RecordStoreOperation("put_average", "error", timer.Elapsed().Seconds())
		return fmt.Errorf("failed to update average: %w", err)
	}

	metrics.RecordStoreOperation("put_average", "success", timer.Elapsed().Seconds())
	return nil
}

func (s *Store) GetTotal(ctx context.Context, stock string) (domain.Total, error) {
	total := domain.Total{Stock: stock}

	err := s.db.pool.QueryRow(ctx,
		`SELECT COALESCE(quantity, 0), COALESCE(amount, 0), COALESCE(coin, '')
		 FROM stocks WHERE stock = $1 AND type = 'TOTAL'`, stock).
		Scan(&total.Quantity, &total.Amount, &total.Coin)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Total{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Total{}, fmt.Errorf("failed to read total: %w", err)
	}

	return total, nil
}

func (s *Store) GetMeanPrice(ctx context.Context, stock string) (domain.MeanPrice, error) {
	price := domain.MeanPrice{Stock: stock}

	err := s.db.pool.QueryRow(ctx,
		`SELECT COALESCE(value, 0) FROM stocks WHERE stock = $1 AND type = 'MEANPRICE'`, stock).
		Scan(&price.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MeanPrice{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.MeanPrice{}, fmt.Errorf("failed to read mean price: %w", err)
	}

	return price, nil
}

func (s *Store) GetAverage(ctx context.Context, stock string) (domain.Average, error) {
	average := domain.Average{Stock: stock}

	err := s.db.pool.QueryRow(ctx,
		`SELECT COALESCE(average, 0), COALESCE(coin, '')
		 FROM stocks WHERE stock = $1 AND type = 'AVERAGE'`, stock).
		Scan(&average.Average, &average.Coin)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Average{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Average{}, fmt.Errorf("failed to read average: %w", err)
	}

	return average, nil
}

func (s *Store) Trades(ctx context.Context, stock string) ([]domain.Trade, error) {
	query := `
		SELECT stock, type, COALESCE(quantity, 0), COALESCE(amount, 0),
		       COALESCE(total, 0), COALESCE(coin, ''), COALESCE(trade_date, '')
		FROM stocks
		WHERE (type LIKE 'BUY#%' OR type LIKE 'SELL#%')
		  AND ($1 = '' OR stock = $1)
		ORDER BY updated_at
	`

	rows, err := s.db.pool.Query(ctx, query, stock)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var trade domain.Trade
		err := rows.Scan(&trade.Stock, &trade.Type, &trade.Quantity,
			&trade.Amount, &trade.Total, &trade.Coin, &trade.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}

	return trades, nil
}
