package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Record types stored under the (stock, type) key. Trade records use a
// composite sort key "<OPERATION>#<requestID>"; aggregates use fixed keys.
const (
	TypeTotal     = "TOTAL"
	TypeMeanPrice = "MEANPRICE"
	TypeAverage   = "AVERAGE"

	OperationBuy  = "BUY"
	OperationSell = "SELL"

	prefixBuy  = "BUY#"
	prefixSell = "SELL#"
)

type Key struct {
	Stock string `json:"stock"`
	Type  string `json:"type"`
}

func (k Key) String() string {
	return k.Stock + "/" + k.Type
}

func IsBuy(recordType string) bool {
	return strings.HasPrefix(recordType, prefixBuy)
}

func IsSell(recordType string) bool {
	return strings.HasPrefix(recordType, prefixSell)
}

func IsTrade(recordType string) bool {
	return IsBuy(recordType) || IsSell(recordType)
}

// TradeType builds the sort key for a trade record, e.g. "BUY#a1b2c3".
func TradeType(operation, requestID string) string {
	return fmt.Sprintf("%s#%s", strings.ToUpper(operation), requestID)
}

// TradeID extracts the request id portion of a trade sort key.
func TradeID(recordType string) string {
	if i := strings.Index(recordType, "#"); i >= 0 {
		return recordType[i+1:]
	}
	return recordType
}

// Trade is an immutable buy/sell execution record. Amount is the capital
// moved by the trade; Total is precomputed by the write path as
// quantity * amount and kept for auditing.
type Trade struct {
	Stock    string          `json:"stock"`
	Type     string          `json:"type"`
	Quantity int64           `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
	Total    decimal.Decimal `json:"total"`
	Coin     string          `json:"coin"`
	Date     string          `json:"date"`
}

// Total is the running position for a stock: signed sums of quantity and
// contributed capital, plus the settlement currency of the last trade.
type Total struct {
	Stock    string          `json:"stock"`
	Quantity int64           `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
	Coin     string          `json:"coin"`
}

// MeanPrice holds the price of the most recently processed trade. It is
// not position-aware and may diverge from Average.
type MeanPrice struct {
	Stock string          `json:"stock"`
	Value decimal.Decimal `json:"value"`
}

// Average is the capital-weighted average cost of the open position.
type Average struct {
	Stock   string          `json:"stock"`
	Average decimal.Decimal `json:"average"`
	Coin    string          `json:"coin"`
}
