package strategy

import (
	"context"

	"backtest_go/internal/domain"
)

// Strategy is the interface replayed strategies implement. The engine
// calls RunIteration once per simulated step with a client pinned to the
// simulated clock. A strategy must read time only through client.Now()
// and market data only through the client's getters; it holds whatever
// internal state it needs between iterations.
//
// A returned error aborts or skips the step according to the engine's
// error policy.
type Strategy interface {
	RunIteration(ctx context.Context, client domain.ExchangeClient) error
}

// Name is implemented by strategies that identify themselves in reports.
type Name interface {
	Name() string
}
