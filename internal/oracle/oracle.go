// Package oracle fetches current market data for called tokens.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"callwatch/internal/domain"
)

// Oracle errors. All are per-item: none should abort a polling batch.
var (
	ErrNotFound    = errors.New("token not found")
	ErrTimeout     = errors.New("price source timeout")
	ErrRateLimited = errors.New("price source rate limited")
	ErrUnavailable = errors.New("price source unavailable")
)

// IsTransient reports whether err is worth retrying on the next poll.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// DefaultAssumedSupply is the standard launchpad token supply used when a
// source reports price but no market cap.
const DefaultAssumedSupply = 1_000_000_000

// DefaultFetchTimeout bounds a single Fetch including fallbacks.
const DefaultFetchTimeout = 10 * time.Second

// PrimaryBudget is the share of a Fetch budget the primary source may use,
// leaving the rest for the secondary.
func PrimaryBudget(total time.Duration) time.Duration {
	return total * 2 / 3
}

// PriceOracle returns market data for a token.
type PriceOracle interface {
	Fetch(ctx context.Context, chain domain.Chain, address string) (*domain.MarketData, error)
}

// SupplySource returns the circulating supply of a token in whole units.
type SupplySource interface {
	TokenSupply(ctx context.Context, address string) (float64, error)
}

// Options configures Oracle.
type Options struct {
	Primary   PriceOracle
	Secondary PriceOracle  // optional, SOL only
	Supply    SupplySource // optional, SOL only

	AssumedSupply float64
	Timeout       time.Duration
	Logger        *zerolog.Logger // nil uses the global logger
}

// Oracle chains a primary and secondary source and fills in a market cap
// when the source only reports price.
type Oracle struct {
	primary       PriceOracle
	secondary     PriceOracle
	supply        SupplySource
	assumedSupply float64
	timeout       time.Duration
	logger        zerolog.Logger
}

// New creates a new Oracle.
func New(opts Options) *Oracle {
	if opts.AssumedSupply <= 0 {
		opts.AssumedSupply = DefaultAssumedSupply
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Oracle{
		primary:       opts.Primary,
		secondary:     opts.Secondary,
		supply:        opts.Supply,
		assumedSupply: opts.AssumedSupply,
		timeout:       opts.Timeout,
		logger:        logger.With().Str("component", "oracle").Logger(),
	}
}

// Fetch implements PriceOracle.
func (o *Oracle) Fetch(ctx context.Context, chain domain.Chain, address string) (*domain.MarketData, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	data, err := o.fetchPrimary(ctx, chain, address)
	if err != nil && o.secondary != nil && chain == domain.ChainSOL {
		o.logger.Debug().Err(err).Str("address", address).Msg("primary source failed, trying secondary")
		alt, altErr := o.secondary.Fetch(ctx, chain, address)
		if altErr == nil {
			data, err = alt, nil
		} else if errors.Is(err, ErrNotFound) {
			// Secondary's failure is more informative than a plain miss.
			err = altErr
		}
	}
	if err != nil {
		return nil, err
	}

	o.fillMarketCap(ctx, chain, address, data)
	return data, nil
}

// fetchPrimary bounds the primary to its share of the budget when a
// secondary could still be consulted.
func (o *Oracle) fetchPrimary(ctx context.Context, chain domain.Chain, address string) (*domain.MarketData, error) {
	if o.secondary == nil || chain != domain.ChainSOL {
		return o.primary.Fetch(ctx, chain, address)
	}
	pctx, cancel := context.WithTimeout(ctx, PrimaryBudget(o.timeout))
	defer cancel()
	data, err := o.primary.Fetch(pctx, chain, address)
	if err != nil && errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !IsTransient(err) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return data, err
}

func (o *Oracle) fillMarketCap(ctx context.Context, chain domain.Chain, address string, data *domain.MarketData) {
	if data.MarketCapUSD != nil || data.PriceUSD == nil || *data.PriceUSD <= 0 {
		return
	}

	if o.supply != nil && chain == domain.ChainSOL {
		supply, err := o.supply.TokenSupply(ctx, address)
		if err == nil && supply > 0 {
			mc := *data.PriceUSD * supply
			data.MarketCapUSD = &mc
			return
		}
		if err != nil {
			o.logger.Debug().Err(err).Str("address", address).Msg("token supply lookup failed")
		}
	}

	mc := *data.PriceUSD * o.assumedSupply
	data.MarketCapUSD = &mc
	data.MarketCapEstimated = true
}

// classifyStatus maps an upstream HTTP status to an oracle error.
func classifyStatus(source string, status int) error {
	switch {
	case status == 404:
		return fmt.Errorf("%s: %w", source, ErrNotFound)
	case status == 429:
		return fmt.Errorf("%s: %w", source, ErrRateLimited)
	case status == 408 || status == 504:
		return fmt.Errorf("%s: status %d: %w", source, status, ErrTimeout)
	default:
		return fmt.Errorf("%s: status %d: %w", source, status, ErrUnavailable)
	}
}
