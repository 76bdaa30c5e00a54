package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Default Solana RPC client configuration.
const (
	DefaultRPCMaxRetries  = 2
	DefaultRPCRetryDelay  = 500 * time.Millisecond
	DefaultRPCMaxDelay    = 4 * time.Second
	DefaultRPCBackoffMult = 2.0
)

// SolanaSupply reads SPL token supply over Solana JSON-RPC 2.0.
type SolanaSupply struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// SupplyOption configures SolanaSupply.
type SupplyOption func(*SolanaSupply)

// WithSupplyHTTPClient sets custom http.Client.
func WithSupplyHTTPClient(client *http.Client) SupplyOption {
	return func(s *SolanaSupply) {
		s.client = client
	}
}

// WithSupplyRetries sets maximum retry attempts and the initial delay.
func WithSupplyRetries(n int, delay time.Duration) SupplyOption {
	return func(s *SolanaSupply) {
		s.maxRetries = n
		s.retryDelay = delay
	}
}

// NewSolanaSupply creates a supply reader for the given RPC endpoint.
func NewSolanaSupply(endpoint string, opts ...SupplyOption) *SolanaSupply {
	s := &SolanaSupply{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultHTTPTimeout},
		maxRetries:  DefaultRPCMaxRetries,
		retryDelay:  DefaultRPCRetryDelay,
		maxDelay:    DefaultRPCMaxDelay,
		backoffMult: DefaultRPCBackoffMult,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ SupplySource = (*SolanaSupply)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

type tokenSupplyResult struct {
	Value struct {
		Amount         string `json:"amount"`
		Decimals       int    `json:"decimals"`
		UIAmountString string `json:"uiAmountString"`
	} `json:"value"`
}

// TokenSupply implements SupplySource.
func (s *SolanaSupply) TokenSupply(ctx context.Context, mint string) (float64, error) {
	var result tokenSupplyResult
	if err := s.call(ctx, "getTokenSupply", []any{mint}, &result); err != nil {
		return 0, err
	}
	supply, err := strconv.ParseFloat(result.Value.UIAmountString, 64)
	if err != nil {
		return 0, fmt.Errorf("parse supply %q: %w", result.Value.UIAmountString, err)
	}
	return supply, nil
}

// call performs a JSON-RPC call with retries and exponential backoff.
// RPC-level errors are returned without retry.
func (s *SolanaSupply) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%v: %w", ctx.Err(), ErrTimeout)
			case <-time.After(delay):
			}
			delay = min(time.Duration(float64(delay)*s.backoffMult), s.maxDelay)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = classifyTransportError("solana rpc", err)
			continue
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = classifyStatus("solana rpc", resp.StatusCode)
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
