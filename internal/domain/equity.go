package domain

import "time"

// EquitySample is one point on the equity curve: total portfolio value at
// a simulated instant. Samples are append-only and ordered; they are never
// rewritten once recorded.
type EquitySample struct {
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
}
