package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/shopspring/decimal"
)

func TestAddToTotalDefaultsAndAccumulates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	result, err := store.AddToTotal(ctx, domain.Total{
		Stock:    "PETR4",
		Quantity: 10,
		Amount:   decimal.NewFromInt(1000),
		Coin:     "BRL",
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Created {
		t.Error("first add must create the record")
	}
	if !result.Applied {
		t.Error("unconditional add must always apply")
	}
	if result.Total.Quantity != 10 || !result.Total.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("total = %d/%s, want 10/1000", result.Total.Quantity, result.Total.Amount)
	}

	result, err = store.AddToTotal(ctx, domain.Total{
		Stock:    "PETR4",
		Quantity: -4,
		Amount:   decimal.NewFromInt(-400),
		Coin:     "USD",
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Created {
		t.Error("second add must not report created")
	}
	if result.Total.Quantity != 6 || !result.Total.Amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("total = %d/%s, want 6/600", result.Total.Quantity, result.Total.Amount)
	}
	if result.Total.Coin != "USD" {
		t.Errorf("coin = %s, want overwrite to USD", result.Total.Coin)
	}
}

func TestAddToTotalDedup(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	delta := domain.Total{Stock: "PETR4", Quantity: 10, Amount: decimal.NewFromInt(1000), Coin: "BRL"}

	first, err := store.AddToTotal(ctx, delta, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Applied {
		t.Error("first delivery must apply")
	}

	second, err := store.AddToTotal(ctx, delta, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Applied {
		t.Error("duplicate delivery must not apply")
	}
	if second.Total.Quantity != 10 {
		t.Errorf("quantity = %d, want unchanged 10", second.Total.Quantity)
	}

	// Same trade id on another stock is unrelated.
	other, err := store.AddToTotal(ctx, domain.Total{Stock: "VALE3", Quantity: 1, Amount: decimal.NewFromInt(5)}, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !other.Applied {
		t.Error("dedup must be scoped per stock")
	}
}

func TestPutTradeIsImmutable(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	trade := domain.Trade{
		Stock:    "PETR4",
		Type:     "BUY#req-1",
		Quantity: 1,
		Amount:   decimal.NewFromInt(10),
	}

	if err := store.PutTrade(ctx, trade); err != nil {
		t.Fatal(err)
	}
	if err := store.PutTrade(ctx, trade); err == nil {
		t.Error("rewriting a trade record must fail")
	}
}

func TestTradesListsByStock(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, trade := range []domain.Trade{
		{Stock: "PETR4", Type: "BUY#1"},
		{Stock: "VALE3", Type: "BUY#2"},
		{Stock: "PETR4", Type: "SELL#3"},
	} {
		if err := store.PutTrade(ctx, trade); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.Trades(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all trades = %d, want 3", len(all))
	}

	petr, err := store.Trades(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if len(petr) != 2 || petr[0].Type != "BUY#1" || petr[1].Type != "SELL#3" {
		t.Errorf("PETR4 trades = %v, want [BUY#1 SELL#3]", petr)
	}
}

func TestReadsReturnNotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.GetTotal(ctx, "PETR4"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTotal err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetAverage(ctx, "PETR4"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAverage err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetMeanPrice(ctx, "PETR4"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMeanPrice err = %v, want ErrNotFound", err)
	}
}
