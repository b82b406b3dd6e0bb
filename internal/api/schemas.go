package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// InsertStockRequest is the trade write payload. Amount is the capital
// moved by the trade; stock and coin are case-normalized server side.
type InsertStockRequest struct {
	Stock     string          `json:"stock"`
	Operation string          `json:"operation"`
	Quantity  int64           `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Coin      string          `json:"coin"`
	Date      string          `json:"date,omitempty"`
}

type InsertStockResponse struct {
	RequestID string `json:"requestId"`
}

// ErrorEnvelope mirrors the write path's error contract:
// {state: "error", message}.
type ErrorEnvelope struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

func errorEnvelope(message string) ErrorEnvelope {
	return ErrorEnvelope{State: "error", Message: message}
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

type ServiceHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ReplayResponse struct {
	Stock    string `json:"stock,omitempty"`
	Replayed int    `json:"replayed"`
}

type SystemStatsResponse struct {
	Database DatabaseStats `json:"database"`
}

type DatabaseStats struct {
	ActiveConnections int32  `json:"active_connections"`
	IdleConnections   int32  `json:"idle_connections"`
	TotalConnections  int32  `json:"total_connections"`
	WaitCount         int64  `json:"wait_count"`
	WaitDuration      string `json:"wait_duration"`
}
