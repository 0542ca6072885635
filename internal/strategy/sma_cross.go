package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"backtest_go/internal/domain"
)

// SMACross trades simple moving average crossovers. It buys when the
// short average crosses above the long one and sells its inventory when
// it crosses back below. Stateful and deterministic; prices are kept in
// a fixed-size ring buffer so the per-iteration path allocates nothing.
type SMACross struct {
	instrument  string
	shortPeriod int
	longPeriod  int
	orderSize   float64

	prices []float64
	head   int
	count  int
	sum    float64 // running sum over the long window

	prevShort float64
	prevLong  float64
	warm      bool

	inventory float64
	logger    *slog.Logger
}

// NewSMACross creates the strategy. shortPeriod must be strictly less
// than longPeriod.
func NewSMACross(instrument string, shortPeriod, longPeriod int, orderSize float64) (*SMACross, error) {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("invalid periods: short %d must be in (0, %d)", shortPeriod, longPeriod)
	}
	if orderSize <= 0 {
		return nil, fmt.Errorf("order size must be positive, got %v", orderSize)
	}
	return &SMACross{
		instrument:  instrument,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		orderSize:   orderSize,
		prices:      make([]float64, longPeriod),
		logger:      slog.Default().With("module", "strategy", "name", "sma_cross"),
	}, nil
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.shortPeriod, s.longPeriod)
}

// RunIteration reads the current midpoint, updates the averages and
// places at most one order on a crossover.
func (s *SMACross) RunIteration(ctx context.Context, client domain.ExchangeClient) error {
	price, err := client.GetMidpoint(s.instrument)
	if err != nil {
		return fmt.Errorf("reading midpoint: %w", err)
	}

	s.push(price)
	if s.count < s.longPeriod {
		return nil
	}

	short := s.average(s.shortPeriod)
	long := s.sum / float64(s.longPeriod)
	defer func() {
		s.prevShort, s.prevLong = short, long
		s.warm = true
	}()

	if !s.warm {
		return nil
	}

	crossedUp := s.prevShort <= s.prevLong && short > long
	crossedDown := s.prevShort >= s.prevLong && short < long

	switch {
	case crossedUp:
		order, err := client.PlaceOrder(s.instrument, domain.SideBuy, price, s.orderSize)
		if err != nil {
			return fmt.Errorf("placing buy: %w", err)
		}
		if order.Status == domain.OrderStatusFilled {
			s.inventory += order.Size
			s.logger.Info("crossover buy filled",
				slog.Time("at", client.Now()),
				slog.Float64("fill", order.FillPrice),
				slog.Float64("inventory", s.inventory))
		} else {
			s.logger.Warn("crossover buy rejected", slog.String("reason", order.RejectReason))
		}

	case crossedDown && s.inventory > 0:
		order, err := client.PlaceOrder(s.instrument, domain.SideSell, price, s.inventory)
		if err != nil {
			return fmt.Errorf("placing sell: %w", err)
		}
		if order.Status == domain.OrderStatusFilled {
			s.inventory = 0
			s.logger.Info("crossover sell filled",
				slog.Time("at", client.Now()),
				slog.Float64("fill", order.FillPrice))
		}
	}

	return nil
}

// push appends a price, evicting the oldest once the window is full.
func (s *SMACross) push(price float64) {
	if s.count == s.longPeriod {
		s.sum -= s.prices[s.head]
	} else {
		s.count++
	}
	s.prices[s.head] = price
	s.sum += price
	s.head = (s.head + 1) % s.longPeriod
}

// average computes the mean of the most recent n prices.
func (s *SMACross) average(n int) float64 {
	var sum float64
	idx := s.head
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum += s.prices[idx]
	}
	return sum / float64(n)
}
