package oracle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"callwatch/internal/domain"
)

// DefaultJupiterURL is the public Jupiter price API.
const DefaultJupiterURL = "https://api.jup.ag"

// Jupiter is a price-only secondary source for Solana tokens.
type Jupiter struct {
	src *httpSource
}

// NewJupiter creates a Jupiter client. An empty baseURL uses the public API.
func NewJupiter(baseURL string, opts ...Option) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	return &Jupiter{src: newHTTPSource("jupiter", strings.TrimRight(baseURL, "/"), opts...)}
}

var _ PriceOracle = (*Jupiter)(nil)

type jupiterPriceResponse struct {
	Data map[string]*struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// Fetch implements PriceOracle. Only SOL is supported.
func (j *Jupiter) Fetch(ctx context.Context, chain domain.Chain, address string) (*domain.MarketData, error) {
	if chain != domain.ChainSOL {
		return nil, fmt.Errorf("jupiter: %s: %w", chain, ErrNotFound)
	}

	var resp jupiterPriceResponse
	if err := j.src.getJSON(ctx, "/price/v2?ids="+url.QueryEscape(address), &resp); err != nil {
		return nil, err
	}

	entry := resp.Data[address]
	if entry == nil {
		return nil, fmt.Errorf("jupiter: %s: %w", address, ErrNotFound)
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("jupiter: %s: no price: %w", address, ErrNotFound)
	}

	return &domain.MarketData{
		PriceUSD: &price,
		Source:   "jupiter",
	}, nil
}
