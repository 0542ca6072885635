package history

// Wire DTOs for the prices-history endpoint. Prices travel as strings on
// the wire; the quirk stays at this boundary and is parsed into typed
// values before anything downstream sees them.

type historyResponse struct {
	History []historyBar `json:"history"`
}

type historyBar struct {
	Ts     int64  `json:"t"` // unix seconds
	Price  string `json:"p"`
	Volume string `json:"v,omitempty"`
}
