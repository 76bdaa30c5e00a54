package oracle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"callwatch/internal/domain"
)

// DefaultDexScreenerURL is the public DexScreener API.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// DexScreener is the primary price source, covering both chains.
type DexScreener struct {
	src *httpSource
}

// NewDexScreener creates a DexScreener client. An empty baseURL uses the public API.
func NewDexScreener(baseURL string, opts ...Option) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreener{src: newHTTPSource("dexscreener", strings.TrimRight(baseURL, "/"), opts...)}
}

var _ PriceOracle = (*DexScreener)(nil)

type dexTokensResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string   `json:"priceUsd"`
	MarketCap *float64 `json:"marketCap"`
	FDV       *float64 `json:"fdv"`
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
	Volume *struct {
		H24 *float64 `json:"h24"`
	} `json:"volume"`
}

func (p *dexPair) liquidityUSD() float64 {
	if p.Liquidity == nil || p.Liquidity.USD == nil {
		return 0
	}
	return *p.Liquidity.USD
}

// dexChainIDs maps chains to DexScreener chain ids.
var dexChainIDs = map[domain.Chain]string{
	domain.ChainSOL: "solana",
	domain.ChainBSC: "bsc",
}

// Fetch implements PriceOracle. The pair with the highest USD liquidity wins,
// ties broken by the smallest pair address.
func (d *DexScreener) Fetch(ctx context.Context, chain domain.Chain, address string) (*domain.MarketData, error) {
	chainID, ok := dexChainIDs[chain]
	if !ok {
		return nil, fmt.Errorf("dexscreener: %w: %q", domain.ErrInvalidChain, chain)
	}

	var resp dexTokensResponse
	if err := d.src.getJSON(ctx, "/latest/dex/tokens/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}

	best := selectPair(resp.Pairs, chainID, address)
	if best == nil {
		return nil, fmt.Errorf("dexscreener: %s on %s: %w", address, chain, ErrNotFound)
	}

	data := &domain.MarketData{
		Source:      "dexscreener",
		PairAddress: best.PairAddress,
	}
	if price, err := strconv.ParseFloat(best.PriceUSD, 64); err == nil && price > 0 {
		data.PriceUSD = &price
	}
	switch {
	case positive(best.MarketCap):
		data.MarketCapUSD = best.MarketCap
	case positive(best.FDV):
		data.MarketCapUSD = best.FDV
	}
	if best.Liquidity != nil {
		data.LiquidityUSD = best.Liquidity.USD
	}
	if best.Volume != nil {
		data.Volume24hUSD = best.Volume.H24
	}
	if best.BaseToken.Symbol != "" {
		sym := best.BaseToken.Symbol
		data.Ticker = &sym
	}

	return data, nil
}

func selectPair(pairs []dexPair, chainID, address string) *dexPair {
	var best *dexPair
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != chainID {
			continue
		}
		if p.BaseToken.Address != "" && !strings.EqualFold(p.BaseToken.Address, address) {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		liq, bestLiq := p.liquidityUSD(), best.liquidityUSD()
		if liq > bestLiq || (liq == bestLiq && p.PairAddress < best.PairAddress) {
			best = p
		}
	}
	return best
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}
