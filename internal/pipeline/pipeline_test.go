package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
	"github.com/jeovahfialho/stock-tracker/internal/storage"
	"github.com/jeovahfialho/stock-tracker/internal/storage/memory"
	"github.com/jeovahfialho/stock-tracker/internal/stream"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func i64(value int64) *int64 {
	return &value
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func tradeEvent(stock, operation, id string, quantity int64, amount string) stream.Event {
	recordType := domain.TradeType(operation, id)
	return stream.Event{
		Name: stream.Insert,
		Keys: domain.Key{Stock: stock, Type: recordType},
		NewImage: domain.Item{
			Stock:    stock,
			Type:     recordType,
			Quantity: i64(quantity),
			Amount:   decPtr(amount),
			Coin:     "USD",
		},
	}
}

type fixture struct {
	store   *memory.Store
	bus     *stream.Bus
	relay   *Relay
	trades  *TradeHandler
	average *AverageHandler
	mean    *MeanPriceHandler
}

func newFixture(dedup bool) *fixture {
	log := zap.NewNop()
	store := memory.NewStore()
	bus := stream.NewBus()

	mean := NewMeanPriceHandler(store, bus, log)
	relay := NewRelay(mean, 0, time.Millisecond, time.Second, log)

	return &fixture{
		store:   store,
		bus:     bus,
		relay:   relay,
		trades:  NewTradeHandler(store, bus, relay, dedup, log),
		average: NewAverageHandler(store, bus, log),
		mean:    mean,
	}
}

func TestTradeHandlerSignedTotals(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	steps := []struct {
		operation    string
		quantity     int64
		amount       string
		wantQuantity int64
		wantAmount   string
	}{
		{"BUY", 10, "1000", 10, "1000"},
		{"BUY", 5, "600", 15, "1600"},
		{"SELL", 3, "450", 12, "1150"},
		{"SELL", 12, "1150", 0, "0"},
	}

	for i, step := range steps {
		event := tradeEvent("PETR4", step.operation, fmt.Sprintf("req-%d", i), step.quantity, step.amount)
		if err := f.trades.Handle(ctx, event); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		total, err := f.store.GetTotal(ctx, "PETR4")
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if total.Quantity != step.wantQuantity {
			t.Errorf("step %d: quantity = %d, want %d", i, total.Quantity, step.wantQuantity)
		}
		if !total.Amount.Equal(dec(step.wantAmount)) {
			t.Errorf("step %d: amount = %s, want %s", i, total.Amount, step.wantAmount)
		}
	}

	f.relay.Wait()
}

func TestTradeHandlerEmitsTotalChange(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	var captured []stream.Event
	f.bus.Subscribe(TotalFilter, func(ctx context.Context, event stream.Event) error {
		captured = append(captured, event)
		return nil
	})

	if err := f.trades.Handle(ctx, tradeEvent("VALE3", "BUY", "req-1", 2, "100")); err != nil {
		t.Fatal(err)
	}
	if err := f.trades.Handle(ctx, tradeEvent("VALE3", "BUY", "req-2", 3, "200")); err != nil {
		t.Fatal(err)
	}
	f.relay.Wait()

	if len(captured) != 2 {
		t.Fatalf("captured %d total events, want 2", len(captured))
	}
	if captured[0].Name != stream.Insert {
		t.Errorf("first total event = %s, want INSERT", captured[0].Name)
	}
	if captured[1].Name != stream.Modify {
		t.Errorf("second total event = %s, want MODIFY", captured[1].Name)
	}
	if captured[1].NewImage.Quantity == nil || *captured[1].NewImage.Quantity != 5 {
		t.Errorf("second image quantity = %v, want 5", captured[1].NewImage.Quantity)
	}
}

func TestTradeHandlerMalformedEvent(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	base := tradeEvent("PETR4", "BUY", "req-1", 10, "1000")

	tests := []struct {
		name   string
		mutate func(*stream.Event)
	}{
		{"missing quantity", func(e *stream.Event) { e.NewImage.Quantity = nil }},
		{"missing amount", func(e *stream.Event) { e.NewImage.Amount = nil }},
		{"not a trade key", func(e *stream.Event) { e.Keys.Type = domain.TypeTotal }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := base
			tt.mutate(&event)

			err := f.trades.Handle(ctx, event)
			var malformed *MalformedEventError
			if !errors.As(err, &malformed) {
				t.Fatalf("err = %v, want MalformedEventError", err)
			}
			if Retryable(err) {
				t.Error("malformed events must not be retryable")
			}
		})
	}

	if _, err := f.store.GetTotal(ctx, "PETR4"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("malformed events must not touch the total")
	}
}

// Redelivering the same trade doubles its contribution: the increment is
// not idempotent with dedup disabled. This pins down current behavior,
// not desired behavior.
func TestTradeHandlerRedeliveryDoublesTotal(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	event := tradeEvent("PETR4", "BUY", "req-1", 10, "1000")
	for i := 0; i < 2; i++ {
		if err := f.trades.Handle(ctx, event); err != nil {
			t.Fatal(err)
		}
	}
	f.relay.Wait()

	total, err := f.store.GetTotal(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if total.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", total.Quantity)
	}
	if !total.Amount.Equal(dec("2000")) {
		t.Errorf("amount = %s, want 2000", total.Amount)
	}
}

func TestTradeHandlerDedupMakesRedeliveryIdempotent(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	event := tradeEvent("PETR4", "BUY", "req-1", 10, "1000")
	for i := 0; i < 3; i++ {
		if err := f.trades.Handle(ctx, event); err != nil {
			t.Fatal(err)
		}
	}
	f.relay.Wait()

	total, err := f.store.GetTotal(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if total.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", total.Quantity)
	}
	if !total.Amount.Equal(dec("1000")) {
		t.Errorf("amount = %s, want 1000", total.Amount)
	}
}

// flakyPublisher fails a fixed number of TOTAL publishes before
// delegating to the bus.
type flakyPublisher struct {
	bus      *stream.Bus
	failures int
}

func (p *flakyPublisher) Publish(ctx context.Context, event stream.Event) error {
	if event.Keys.Type == domain.TypeTotal && p.failures > 0 {
		p.failures--
		return errors.New("stream unavailable")
	}
	return p.bus.Publish(ctx, event)
}

// With dedup enabled, an increment can commit and then fail to publish
// its TOTAL event. The redelivery takes the duplicate path and must
// still emit the current image and trigger the mean price calculator.
func TestTradeHandlerDedupRepublishesAfterFailedPublish(t *testing.T) {
	log := zap.NewNop()
	store := memory.NewStore()
	bus := stream.NewBus()
	publisher := &flakyPublisher{bus: bus, failures: 1}

	mean := NewMeanPriceHandler(store, bus, log)
	relay := NewRelay(mean, 0, time.Millisecond, time.Second, log)
	trades := NewTradeHandler(store, publisher, relay, true, log)

	var captured []stream.Event
	bus.Subscribe(TotalFilter, func(ctx context.Context, event stream.Event) error {
		captured = append(captured, event)
		return nil
	})

	ctx := context.Background()
	event := tradeEvent("PETR4", "BUY", "req-1", 10, "1000")

	err := trades.Handle(ctx, event)
	var storeErr *StoreWriteError
	if !errors.As(err, &storeErr) {
		t.Fatalf("first delivery err = %v, want StoreWriteError", err)
	}

	if err := trades.Handle(ctx, event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	relay.Wait()

	total, err := store.GetTotal(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if total.Quantity != 10 || !total.Amount.Equal(dec("1000")) {
		t.Errorf("total = %d/%s, want 10/1000", total.Quantity, total.Amount)
	}

	if len(captured) != 1 {
		t.Fatalf("captured %d total events, want 1", len(captured))
	}
	if captured[0].Name != stream.Modify {
		t.Errorf("event name = %s, want MODIFY", captured[0].Name)
	}
	if captured[0].NewImage.Quantity == nil || *captured[0].NewImage.Quantity != 10 {
		t.Errorf("image quantity = %v, want 10", captured[0].NewImage.Quantity)
	}

	price, err := store.GetMeanPrice(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Value.Equal(dec("100")) {
		t.Errorf("mean = %s, want 100", price.Value)
	}
}

func TestTradeHandlerStoreFailureIsRetryable(t *testing.T) {
	f := newFixture(false)
	f.store.FailWrites = true
	ctx := context.Background()

	err := f.trades.Handle(ctx, tradeEvent("PETR4", "BUY", "req-1", 10, "1000"))
	var storeErr *StoreWriteError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want StoreWriteError", err)
	}
	if !Retryable(err) {
		t.Error("store failures must be retryable")
	}
}

func TestMeanPriceHandler(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	trade := domain.Item{
		Stock:    "PETR4",
		Type:     "BUY#req-1",
		Quantity: i64(4),
		Amount:   decPtr("100"),
		Coin:     "BRL",
	}

	if err := f.mean.Handle(ctx, trade); err != nil {
		t.Fatal(err)
	}

	price, err := f.store.GetMeanPrice(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Value.Equal(dec("25")) {
		t.Errorf("value = %s, want 25", price.Value)
	}
}

func TestMeanPriceHandlerZeroQuantity(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	trade := domain.Item{
		Stock:    "PETR4",
		Type:     "BUY#req-1",
		Quantity: i64(0),
		Amount:   decPtr("100"),
	}

	err := f.mean.Handle(ctx, trade)
	var invalid *InvalidQuantityError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidQuantityError", err)
	}
	if Retryable(err) {
		t.Error("zero quantity must not be retryable")
	}

	if _, err := f.store.GetMeanPrice(ctx, "PETR4"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("zero quantity must not produce a write")
	}
}

func totalEvent(name stream.EventName, stock string, quantity int64, amount, coin string) stream.Event {
	return stream.Event{
		Name: name,
		Keys: domain.Key{Stock: stock, Type: domain.TypeTotal},
		NewImage: domain.Item{
			Stock:    stock,
			Type:     domain.TypeTotal,
			Quantity: i64(quantity),
			Amount:   decPtr(amount),
			Coin:     coin,
		},
	}
}

func TestAverageHandler(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	event := totalEvent(stream.Modify, "PETR4", 4, "100", "BRL")

	// Repeated delivery of the same image must be idempotent.
	for i := 0; i < 2; i++ {
		if err := f.average.Handle(ctx, event); err != nil {
			t.Fatal(err)
		}
	}

	average, err := f.store.GetAverage(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if !average.Average.Equal(dec("25")) {
		t.Errorf("average = %s, want 25", average.Average)
	}
	if average.Coin != "BRL" {
		t.Errorf("coin = %s, want BRL", average.Coin)
	}
}

func TestAverageHandlerZeroQuantityKeepsStaleValue(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	if err := f.average.Handle(ctx, totalEvent(stream.Insert, "PETR4", 2, "50", "BRL")); err != nil {
		t.Fatal(err)
	}

	err := f.average.Handle(ctx, totalEvent(stream.Modify, "PETR4", 0, "-10", "BRL"))
	var invalid *InvalidQuantityError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidQuantityError", err)
	}

	average, err := f.store.GetAverage(ctx, "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if !average.Average.Equal(dec("25")) {
		t.Errorf("stale average = %s, want 25", average.Average)
	}
}

func TestAverageHandlerMalformedEvent(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	event := totalEvent(stream.Modify, "PETR4", 1, "10", "BRL")
	event.NewImage.Amount = nil

	err := f.average.Handle(ctx, event)
	var malformed *MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedEventError", err)
	}
}

// Full pipeline over the in-memory bus: one BUY, then a SELL that closes
// the position. The closing trade leaves AVERAGE stale and MEANPRICE
// updated, mirroring the aggregation's documented eventual behavior.
func TestPipelineEndToEnd(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	log := zap.NewNop()

	f.bus.Subscribe(TradeFilter, Wrap("trade_ingestion", time.Second, f.trades.Handle, log))
	f.bus.Subscribe(TotalFilter, Wrap("average_price", time.Second, f.average.Handle, log))

	if err := f.bus.Publish(ctx, tradeEvent("BTC", "BUY", "req-1", 1, "30000")); err != nil {
		t.Fatal(err)
	}
	f.relay.Wait()

	total, err := f.store.GetTotal(ctx, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if total.Quantity != 1 || !total.Amount.Equal(dec("30000")) {
		t.Errorf("total = %d/%s, want 1/30000", total.Quantity, total.Amount)
	}

	price, err := f.store.GetMeanPrice(ctx, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Value.Equal(dec("30000")) {
		t.Errorf("mean = %s, want 30000", price.Value)
	}

	average, err := f.store.GetAverage(ctx, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if !average.Average.Equal(dec("30000")) {
		t.Errorf("average = %s, want 30000", average.Average)
	}

	if err := f.bus.Publish(ctx, tradeEvent("BTC", "SELL", "req-2", 1, "32000")); err != nil {
		t.Fatal(err)
	}
	f.relay.Wait()

	total, err = f.store.GetTotal(ctx, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if total.Quantity != 0 || !total.Amount.Equal(dec("-2000")) {
		t.Errorf("total = %d/%s, want 0/-2000", total.Quantity, total.Amount)
	}

	// Position closed: the average is undefined and the stale value
	// stays in place.
	average, err = f.store.GetAverage(ctx, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if !average.Average.Equal(dec("30000")) {
		t.Errorf("average = %s, want stale 30000", average.Average)
	}

	price, err = f.store.GetMeanPrice(ctx, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Value.Equal(dec("32000")) {
		t.Errorf("mean = %s, want 32000", price.Value)
	}
}

func BenchmarkTradeHandler(b *testing.B) {
	f := newFixture(false)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		event := tradeEvent("PETR4", "BUY", fmt.Sprintf("req-%d", i), 10, "1000")
		if err := f.trades.Handle(ctx, event); err != nil {
			b.Fatal(err)
		}
	}

	b.StopTimer()
	f.relay.Wait()
}
