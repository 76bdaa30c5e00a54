package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"callwatch/internal/domain"
)

const solMint = "So11111111111111111111111111111111111111112"

func newTestDex(t *testing.T, status int, body string) (*DexScreener, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/latest/dex/tokens/"+solMint && r.URL.Path != "/latest/dex/tokens/0xabc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewDexScreener(server.URL, WithRateLimit(rate.Inf, 1)), &hits
}

func TestDexScreener_SelectsDeepestPair(t *testing.T) {
	body := `{"pairs":[
		{"chainId":"solana","pairAddress":"pairB","baseToken":{"address":"` + solMint + `","symbol":"WIF"},
		 "priceUsd":"0.0002","marketCap":200000,"fdv":210000,"liquidity":{"usd":5000},"volume":{"h24":900}},
		{"chainId":"solana","pairAddress":"pairA","baseToken":{"address":"` + solMint + `","symbol":"WIF"},
		 "priceUsd":"0.0001","marketCap":100000,"liquidity":{"usd":5000},"volume":{"h24":100}},
		{"chainId":"solana","pairAddress":"pairC","baseToken":{"address":"` + solMint + `","symbol":"WIF"},
		 "priceUsd":"0.0003","marketCap":300000,"liquidity":{"usd":1000}},
		{"chainId":"ethereum","pairAddress":"pair0","baseToken":{"address":"` + solMint + `"},
		 "priceUsd":"9","marketCap":9,"liquidity":{"usd":999999}},
		{"chainId":"solana","pairAddress":"pairQ","baseToken":{"address":"OtherMint"},
		 "priceUsd":"9","marketCap":9,"liquidity":{"usd":999999}}
	]}`
	dex, _ := newTestDex(t, http.StatusOK, body)

	data, err := dex.Fetch(context.Background(), domain.ChainSOL, solMint)
	require.NoError(t, err)

	// pairA and pairB tie on liquidity; pairA sorts first.
	assert.Equal(t, "pairA", data.PairAddress)
	require.NotNil(t, data.PriceUSD)
	assert.Equal(t, 0.0001, *data.PriceUSD)
	require.NotNil(t, data.MarketCapUSD)
	assert.Equal(t, 100000.0, *data.MarketCapUSD)
	assert.False(t, data.MarketCapEstimated)
	require.NotNil(t, data.Ticker)
	assert.Equal(t, "WIF", *data.Ticker)
	assert.Equal(t, "dexscreener", data.Source)
}

func TestDexScreener_FallsBackToFDV(t *testing.T) {
	body := `{"pairs":[{"chainId":"bsc","pairAddress":"p1","baseToken":{"address":"0xABC"},
		"priceUsd":"1.5","fdv":42000,"liquidity":{"usd":10}}]}`
	dex, _ := newTestDex(t, http.StatusOK, body)

	data, err := dex.Fetch(context.Background(), domain.ChainBSC, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, data.MarketCapUSD)
	assert.Equal(t, 42000.0, *data.MarketCapUSD)
	assert.Nil(t, data.Volume24hUSD)
}

func TestDexScreener_PriceOnly(t *testing.T) {
	body := `{"pairs":[{"chainId":"solana","pairAddress":"p1","priceUsd":"0.5"}]}`
	dex, _ := newTestDex(t, http.StatusOK, body)

	data, err := dex.Fetch(context.Background(), domain.ChainSOL, solMint)
	require.NoError(t, err)
	assert.Nil(t, data.MarketCapUSD)
	require.NotNil(t, data.PriceUSD)
	assert.Equal(t, 0.5, *data.PriceUSD)
}

func TestDexScreener_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      error
		transient bool
	}{
		{"no pairs", http.StatusOK, `{"pairs":null}`, ErrNotFound, false},
		{"other chain only", http.StatusOK, `{"pairs":[{"chainId":"base","pairAddress":"x"}]}`, ErrNotFound, false},
		{"404", http.StatusNotFound, `{}`, ErrNotFound, false},
		{"429", http.StatusTooManyRequests, `{}`, ErrRateLimited, true},
		{"502", http.StatusBadGateway, `{}`, ErrUnavailable, true},
		{"bad json", http.StatusOK, `{`, ErrUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dex, _ := newTestDex(t, tt.status, tt.body)
			_, err := dex.Fetch(context.Background(), domain.ChainSOL, solMint)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestDexScreener_InvalidChain(t *testing.T) {
	dex, hits := newTestDex(t, http.StatusOK, `{}`)
	_, err := dex.Fetch(context.Background(), domain.Chain("ETH"), "0xabc")
	assert.ErrorIs(t, err, domain.ErrInvalidChain)
	assert.Equal(t, int32(0), hits.Load())
}

func TestDexScreener_BreakerOpens(t *testing.T) {
	dex, hits := newTestDex(t, http.StatusInternalServerError, `{}`)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := dex.Fetch(ctx, domain.ChainSOL, solMint)
		require.ErrorIs(t, err, ErrUnavailable)
	}

	_, err := dex.Fetch(ctx, domain.ChainSOL, solMint)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(5), hits.Load())
}

func TestDexScreener_NotFoundDoesNotTrip(t *testing.T) {
	dex, hits := newTestDex(t, http.StatusOK, `{"pairs":[]}`)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := dex.Fetch(ctx, domain.ChainSOL, solMint)
		require.True(t, errors.Is(err, ErrNotFound))
	}
	assert.Equal(t, int32(8), hits.Load())
}
