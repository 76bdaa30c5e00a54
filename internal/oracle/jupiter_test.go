package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"callwatch/internal/domain"
)

func TestJupiter_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/v2", r.URL.Path)
		assert.Equal(t, solMint, r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"data":{"` + solMint + `":{"id":"` + solMint + `","price":"0.00025"}}}`))
	}))
	defer server.Close()

	j := NewJupiter(server.URL, WithRateLimit(rate.Inf, 1))

	data, err := j.Fetch(context.Background(), domain.ChainSOL, solMint)
	require.NoError(t, err)
	require.NotNil(t, data.PriceUSD)
	assert.Equal(t, 0.00025, *data.PriceUSD)
	assert.Nil(t, data.MarketCapUSD)
	assert.Equal(t, "jupiter", data.Source)
}

func TestJupiter_Missing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"` + solMint + `":null}}`))
	}))
	defer server.Close()

	j := NewJupiter(server.URL, WithRateLimit(rate.Inf, 1))

	_, err := j.Fetch(context.Background(), domain.ChainSOL, solMint)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = j.Fetch(context.Background(), domain.ChainBSC, "0xabc")
	assert.ErrorIs(t, err, ErrNotFound)
}
