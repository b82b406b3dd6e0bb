package domain

import "github.com/shopspring/decimal"

// Item is the sparse image carried by change-stream events. Every field
// is optional; handlers validate presence before use.
type Item struct {
	Stock    string           `json:"stock,omitempty"`
	Type     string           `json:"type,omitempty"`
	Quantity *int64           `json:"quantity,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Total    *decimal.Decimal `json:"total,omitempty"`
	Coin     string           `json:"coin,omitempty"`
	Date     string           `json:"date,omitempty"`
	Value    *decimal.Decimal `json:"value,omitempty"`
	Average  *decimal.Decimal `json:"average,omitempty"`
}

func (t Trade) Item() Item {
	quantity := t.Quantity
	amount := t.Amount
	total := t.Total
	return Item{
		Stock:    t.Stock,
		Type:     t.Type,
		Quantity: &quantity,
		Amount:   &amount,
		Total:    &total,
		Coin:     t.Coin,
		Date:     t.Date,
	}
}

func (t Total) Item() Item {
	quantity := t.Quantity
	amount := t.Amount
	return Item{
		Stock:    t.Stock,
		Type:     TypeTotal,
		Quantity: &quantity,
		Amount:   &amount,
		Coin:     t.Coin,
	}
}

func (m MeanPrice) Item() Item {
	value := m.Value
	return Item{
		Stock: m.Stock,
		Type:  TypeMeanPrice,
		Value: &value,
	}
}

func (a Average) Item() Item {
	average := a.Average
	return Item{
		Stock:   a.Stock,
		Type:    TypeAverage,
		Average: &average,
		Coin:    a.Coin,
	}
}
