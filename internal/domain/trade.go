package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeRecord is the realized execution detail of a fill, consumed by the
// metrics layer. PnL is set only on fills that close existing exposure.
type TradeRecord struct {
	OrderID    uuid.UUID `json:"order_id"`
	Instrument string    `json:"instrument"`
	Side       OrderSide `json:"side"`
	Size       float64   `json:"size"`
	FillPrice  float64   `json:"fill_price"`
	Fee        float64   `json:"fee"`
	Slippage   float64   `json:"slippage"` // |fill - mid| / mid at execution
	PnL        float64   `json:"pnl"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notional returns the traded value at the fill price.
func (t TradeRecord) Notional() float64 {
	return t.Size * t.FillPrice
}

// TradeView is a market trade event as seen through the exchange client,
// synthesized from recorded price movement during replay.
type TradeView struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      OrderSide `json:"side"`
}
