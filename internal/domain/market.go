package domain

// MarketData is a point-in-time market view of a token from the price oracle.
// Every field is optional; partial data is valid.
type MarketData struct {
	PriceUSD     *float64
	MarketCapUSD *float64
	LiquidityUSD *float64
	Volume24hUSD *float64
	Ticker       *string

	// MarketCapEstimated is set when MarketCapUSD was derived from price and an
	// assumed circulating supply rather than reported by the source.
	MarketCapEstimated bool

	Source      string // which upstream produced the data
	PairAddress string // selected trading pair (empty for price-only sources)
}

// MarketCap returns the market cap and whether it is known and positive.
func (m *MarketData) MarketCap() (float64, bool) {
	if m == nil || m.MarketCapUSD == nil || *m.MarketCapUSD <= 0 {
		return 0, false
	}
	return *m.MarketCapUSD, true
}

// MarketSnapshot is one persisted oracle observation for a call.
// Corresponds to market_snapshots table in ClickHouse.
type MarketSnapshot struct {
	CallID       string
	Chain        Chain
	Address      string
	TimestampMs  int64 // observation time (ms)
	PriceUSD     *float64
	MarketCapUSD *float64
	LiquidityUSD *float64
	Volume24hUSD *float64
	Estimated    bool
	Source       string
}

// NewMarketSnapshot builds a snapshot of m for call at timestampMs.
func NewMarketSnapshot(call *Call, m *MarketData, timestampMs int64) *MarketSnapshot {
	return &MarketSnapshot{
		CallID:       call.ID,
		Chain:        call.Chain,
		Address:      call.Address,
		TimestampMs:  timestampMs,
		PriceUSD:     m.PriceUSD,
		MarketCapUSD: m.MarketCapUSD,
		LiquidityUSD: m.LiquidityUSD,
		Volume24hUSD: m.Volume24hUSD,
		Estimated:    m.MarketCapEstimated,
		Source:       m.Source,
	}
}
