package sim

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"backtest_go/internal/domain"
)

// ExchangeConfig holds the execution model of the mock exchange.
type ExchangeConfig struct {
	InitialCapital float64
	SlippagePct    float64 // applied relative to the midpoint; buys fill above, sells below
	FeePct         float64 // fraction of notional deducted per fill
	MinPrice       float64 // asset's valid price domain, fills are clamped into it
	MaxPrice       float64

	// SyntheticTradeSize is the size reported for trades synthesized from
	// price movement when the recorded bar carries no volume.
	SyntheticTradeSize float64
}

// MockExchange implements domain.ExchangeClient against recorded price
// series. Every answer is derived solely from PricePoints visible at the
// simulated clock, so strategy code cannot distinguish it from a live
// client — and cannot observe the future.
//
// Fill semantics are full-immediate-fill only: an accepted order fills in
// its entirety at the slipped price in the same call. Partial fills and
// resting limit orders are not modeled in this version.
type MockExchange struct {
	mu     sync.Mutex
	cfg    ExchangeConfig
	clock  *Clock
	series map[string]domain.TimeSeries

	cash      float64
	positions map[string]*domain.Position
	orders    map[uuid.UUID]*domain.SimulatedOrder
	trades    []domain.TradeRecord

	logger *slog.Logger
}

var _ domain.ExchangeClient = (*MockExchange)(nil)

// NewMockExchange creates an exchange over the given price series, one per
// instrument. The clock is shared with the engine driving the replay.
func NewMockExchange(cfg ExchangeConfig, clock *Clock, feeds ...domain.TimeSeries) *MockExchange {
	if cfg.SyntheticTradeSize <= 0 {
		cfg.SyntheticTradeSize = 100
	}

	series := make(map[string]domain.TimeSeries, len(feeds))
	for _, feed := range feeds {
		series[feed.Instrument] = feed
	}

	return &MockExchange{
		cfg:       cfg,
		clock:     clock,
		series:    series,
		cash:      cfg.InitialCapital,
		positions: make(map[string]*domain.Position),
		orders:    make(map[uuid.UUID]*domain.SimulatedOrder),
		logger:    slog.Default().With("module", "mock_exchange"),
	}
}

// Now returns the simulated time. Strategies read time only through this.
func (m *MockExchange) Now() time.Time {
	return m.clock.Now()
}

// GetMidpoint returns the most recent price visible at the simulated
// clock. Missing-data policy: before the first recorded point the first
// available point is returned rather than a guess; an empty series is an
// error.
func (m *MockExchange) GetMidpoint(instrument string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.midpointLocked(instrument)
}

func (m *MockExchange) midpointLocked(instrument string) (float64, error) {
	s, ok := m.series[instrument]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownInstrument, instrument)
	}

	now := m.clock.Now()
	pt, visible := s.LatestAt(now)
	if !visible {
		first, ok := s.First()
		if !ok {
			return 0, fmt.Errorf("%w: %s", domain.ErrNoPriceData, instrument)
		}
		m.logger.Debug("no bar visible yet, using first available point",
			slog.String("instrument", instrument), slog.Time("now", now))
		return first.Price, nil
	}

	if pt.Timestamp.After(now) {
		// Must never happen; surfaced loudly rather than corrected.
		return 0, &domain.LookaheadError{Instrument: instrument, Requested: pt.Timestamp, Now: now}
	}
	return pt.Price, nil
}

// GetRecentTrades synthesizes market trades from recorded price movement
// strictly within [max(since, series start), now]. The direction follows
// the price change; size comes from bar volume when recorded.
func (m *MockExchange) GetRecentTrades(instrument string, since time.Time) ([]domain.TradeView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownInstrument, instrument)
	}

	now := m.clock.Now()
	first, ok := s.First()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoPriceData, instrument)
	}

	from := since
	if first.Timestamp.After(from) {
		from = first.Timestamp
	}

	window := s.Between(from, now)
	trades := make([]domain.TradeView, 0, len(window))

	var prev *domain.PricePoint
	for i := range window {
		pt := window[i]
		if prev != nil && pt.Price != prev.Price {
			side := domain.SideBuy
			if pt.Price < prev.Price {
				side = domain.SideSell
			}
			size := pt.Volume
			if size <= 0 {
				size = m.cfg.SyntheticTradeSize
			}
			trades = append(trades, domain.TradeView{
				Timestamp: pt.Timestamp,
				Price:     pt.Price,
				Size:      size,
				Side:      side,
			})
		}
		prev = &window[i]
	}
	return trades, nil
}

// PlaceOrder fills an order at the current midpoint adjusted for slippage
// and clamped into the asset's valid price domain, deducts the configured
// fee, and atomically updates cash, position and the trade log. Business
// rejections return the order with a Rejected status and a nil error.
func (m *MockExchange) PlaceOrder(instrument string, side domain.OrderSide, price, size float64) (*domain.SimulatedOrder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("order size must be positive, got %v", size)
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, fmt.Errorf("invalid order side %q", side)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order := &domain.SimulatedOrder{
		ID:             uuid.New(),
		Instrument:     instrument,
		Side:           side,
		RequestedPrice: price,
		Size:           size,
		Status:         domain.OrderStatusCreated,
		Timestamp:      m.clock.Now(),
	}
	m.orders[order.ID] = order

	mid, err := m.midpointLocked(instrument)
	if err != nil {
		order.Status = domain.OrderStatusRejected
		order.RejectReason = err.Error()
		return order, nil
	}

	fill := mid
	if side == domain.SideBuy {
		fill = mid * (1 + m.cfg.SlippagePct)
	} else {
		fill = mid * (1 - m.cfg.SlippagePct)
	}
	fill = clamp(fill, m.cfg.MinPrice, m.cfg.MaxPrice)

	fee := size * fill * m.cfg.FeePct

	if side == domain.SideBuy {
		cost := size*fill + fee
		if cost > m.cash {
			order.Status = domain.OrderStatusRejected
			order.RejectReason = fmt.Sprintf("insufficient funds: cost %.4f > cash %.4f", cost, m.cash)
			return order, nil
		}
		m.cash -= cost
	} else {
		m.cash += size*fill - fee
	}

	pnl := m.applyFill(instrument, side, size, fill)

	order.FillPrice = fill
	order.Fee = fee
	order.Status = domain.OrderStatusFilled

	slippage := 0.0
	if mid > 0 {
		slippage = math.Abs(fill-mid) / mid
	}

	m.trades = append(m.trades, domain.TradeRecord{
		OrderID:    order.ID,
		Instrument: instrument,
		Side:       side,
		Size:       size,
		FillPrice:  fill,
		Fee:        fee,
		Slippage:   slippage,
		PnL:        pnl,
		Timestamp:  order.Timestamp,
	})

	return order, nil
}

// applyFill mutates the position for a fill and returns the realized pnl
// (gross of fees) for any closed exposure.
func (m *MockExchange) applyFill(instrument string, side domain.OrderSide, size, fill float64) float64 {
	pos, ok := m.positions[instrument]
	if !ok {
		pos = &domain.Position{Instrument: instrument}
		m.positions[instrument] = pos
	}

	signed := size
	if side == domain.SideSell {
		signed = -size
	}

	// Extending (or opening) exposure in the same direction.
	if pos.Size == 0 || (pos.Size > 0) == (signed > 0) {
		total := math.Abs(pos.Size) + size
		pos.AvgEntryPrice = (pos.AvgEntryPrice*math.Abs(pos.Size) + fill*size) / total
		pos.Size += signed
		return 0
	}

	// Closing, possibly flipping through zero.
	closeQty := math.Min(math.Abs(pos.Size), size)
	var pnl float64
	if pos.Size > 0 {
		pnl = (fill - pos.AvgEntryPrice) * closeQty
	} else {
		pnl = (pos.AvgEntryPrice - fill) * closeQty
	}
	pos.RealizedPnL += pnl
	pos.Size += signed

	if pos.Size == 0 {
		pos.AvgEntryPrice = 0
	} else if math.Abs(pos.Size) == size-closeQty {
		// Flipped: the remainder opened at the fill price.
		pos.AvgEntryPrice = fill
	}
	return pnl
}

// GetOrder returns a copy of the order with the given id.
func (m *MockExchange) GetOrder(id uuid.UUID) (*domain.SimulatedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	cp := *order
	return &cp, nil
}

// CancelOrder cancels an open order. Every accepted order fills
// immediately in this version, so cancellation of a terminal order is a
// no-op; unknown ids are an error.
func (m *MockExchange) CancelOrder(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if order.Status.IsTerminal() {
		return nil
	}
	return order.Transition(domain.OrderStatusRejected)
}

// GetEquity returns cash plus every position marked at the current
// visible price. The value is recomputed from scratch on every call and
// never cached.
func (m *MockExchange) GetEquity() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equityLocked()
}

func (m *MockExchange) equityLocked() (float64, error) {
	equity := m.cash
	for instrument, pos := range m.positions {
		if pos.IsFlat() {
			continue
		}
		price, err := m.midpointLocked(instrument)
		if err != nil {
			return 0, fmt.Errorf("marking position %s: %w", instrument, err)
		}
		equity += pos.MarketValue(price)
	}
	return equity, nil
}

// Cash returns the current cash balance.
func (m *MockExchange) Cash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// Positions returns a snapshot of all non-flat positions.
func (m *MockExchange) Positions() map[string]domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.Position)
	for instrument, pos := range m.positions {
		if !pos.IsFlat() {
			out[instrument] = *pos
		}
	}
	return out
}

// Trades returns a copy of the trade log in execution order.
func (m *MockExchange) Trades() []domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

// Sample captures an equity sample at the current simulated time.
func (m *MockExchange) Sample() (domain.EquitySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity, err := m.equityLocked()
	if err != nil {
		return domain.EquitySample{}, err
	}
	return domain.EquitySample{
		Timestamp:     m.clock.Now(),
		Value:         equity,
		Cash:          m.cash,
		PositionValue: equity - m.cash,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
