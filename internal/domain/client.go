package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClientCapabilityVersion identifies the exchange-client capability surface.
// A strategy written against version 1 runs unchanged against any client
// declaring the same version, live or simulated.
const ClientCapabilityVersion = 1

// ExchangeClient is the capability interface shared by the live exchange
// client and the replay simulator. Strategy code depends only on this
// interface and obtains time exclusively through Now, which keeps the
// no-lookahead boundary structural rather than conventional.
type ExchangeClient interface {
	// Now returns the client's current time. During replay this is the
	// simulated clock, never the wall clock.
	Now() time.Time

	// GetMidpoint returns the current midpoint price for an instrument.
	GetMidpoint(instrument string) (float64, error)

	// GetRecentTrades returns market trades since the given time, capped
	// at the client's current time.
	GetRecentTrades(instrument string, since time.Time) ([]TradeView, error)

	// PlaceOrder submits an order. The returned order carries its final
	// status; business rejections (e.g. insufficient funds) surface as a
	// Rejected status, not an error.
	PlaceOrder(instrument string, side OrderSide, price, size float64) (*SimulatedOrder, error)

	// GetOrder looks up a previously placed order by id.
	GetOrder(id uuid.UUID) (*SimulatedOrder, error)

	// CancelOrder cancels an open order. Under full-immediate-fill
	// semantics every accepted order is already terminal, so cancellation
	// of a filled order is a documented no-op.
	CancelOrder(id uuid.UUID) error

	// GetEquity returns cash plus positions marked at current prices,
	// recomputed on every call.
	GetEquity() (float64, error)
}
