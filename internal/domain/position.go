package domain

// Position is signed exposure in a single instrument. Positive size is
// long, negative is short. Mutated only by successful order fills.
type Position struct {
	Instrument    string  `json:"instrument"`
	Size          float64 `json:"size"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// MarketValue returns the position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return p.Size * price
}

// IsFlat reports whether the position has no exposure.
func (p Position) IsFlat() bool {
	return p.Size == 0
}
