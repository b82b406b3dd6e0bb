package stream

import (
	"context"
	"testing"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
)

func event(name EventName, stock, recordType string) Event {
	return Event{
		Name: name,
		Keys: domain.Key{Stock: stock, Type: recordType},
	}
}

func TestFilterMatch(t *testing.T) {
	tradeFilter := Filter{
		Names:        []EventName{Insert},
		TypePrefixes: []string{"BUY#", "SELL#"},
	}
	totalFilter := Filter{
		Names:      []EventName{Insert, Modify},
		TypeEquals: domain.TypeTotal,
	}

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"buy insert", tradeFilter, event(Insert, "PETR4", "BUY#1"), true},
		{"sell insert", tradeFilter, event(Insert, "PETR4", "SELL#1"), true},
		{"trade modify rejected", tradeFilter, event(Modify, "PETR4", "BUY#1"), false},
		{"total rejected by trade filter", tradeFilter, event(Insert, "PETR4", "TOTAL"), false},
		{"total insert", totalFilter, event(Insert, "PETR4", "TOTAL"), true},
		{"total modify", totalFilter, event(Modify, "PETR4", "TOTAL"), true},
		{"total remove rejected", totalFilter, event(Remove, "PETR4", "TOTAL"), false},
		{"trade rejected by total filter", totalFilter, event(Insert, "PETR4", "BUY#1"), false},
		{"empty filter matches all", Filter{}, event(Remove, "PETR4", "AVERAGE"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.event); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBusDeliversInOrderToMatchingSubscribers(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var trades, totals []string
	bus.Subscribe(Filter{TypePrefixes: []string{"BUY#"}}, func(ctx context.Context, e Event) error {
		trades = append(trades, e.Keys.Type)
		return nil
	})
	bus.Subscribe(Filter{TypeEquals: domain.TypeTotal}, func(ctx context.Context, e Event) error {
		totals = append(totals, e.Keys.Type)
		return nil
	})

	events := []Event{
		event(Insert, "PETR4", "BUY#1"),
		event(Insert, "PETR4", "TOTAL"),
		event(Insert, "PETR4", "BUY#2"),
	}
	for _, e := range events {
		if err := bus.Publish(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if len(trades) != 2 || trades[0] != "BUY#1" || trades[1] != "BUY#2" {
		t.Errorf("trade deliveries = %v, want [BUY#1 BUY#2]", trades)
	}
	if len(totals) != 1 {
		t.Errorf("total deliveries = %v, want one TOTAL", totals)
	}
}
