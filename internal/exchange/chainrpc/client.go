// Package chainrpc reads native balances over JSON-RPC.
package chainrpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/trade-ledger/internal/exchange"
)

const defaultTimeout = 3 * time.Second

// Native decimals per chain family.
const (
	evmDecimals    = 18
	solanaDecimals = 9
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse[T any] struct {
	Result T         `json:"result"`
	Error  *rpcError `json:"error"`
}

type solanaBalance struct {
	Value uint64 `json:"value"`
}

// Client reads balances from configured chain endpoints. Calls are not
// retried.
type Client struct {
	rest      *resty.Client
	endpoints map[string]string
	seq       atomic.Int64
}

// NewClient creates a client. endpoints maps chain name to RPC URL.
func NewClient(endpoints map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	eps := make(map[string]string, len(endpoints))
	for chain, url := range endpoints {
		eps[strings.ToLower(chain)] = url
	}
	return &Client{
		rest: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Content-Type", "application/json"),
		endpoints: eps,
	}
}

// GetBalance implements exchange.BalanceSource
func (c *Client) GetBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	chain = strings.ToLower(chain)
	url, ok := c.endpoints[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", exchange.ErrUnknownChain, chain)
	}

	if chain == "solana" {
		var out rpcResponse[solanaBalance]
		if err := c.call(ctx, url, "getBalance", []interface{}{address}, &out); err != nil {
			return decimal.Zero, err
		}
		if out.Error != nil {
			return decimal.Zero, fmt.Errorf("solana getBalance: %s", out.Error.Message)
		}
		return decimal.NewFromBigInt(new(big.Int).SetUint64(out.Result.Value), -solanaDecimals), nil
	}

	var out rpcResponse[string]
	if err := c.call(ctx, url, "eth_getBalance", []interface{}{address, "latest"}, &out); err != nil {
		return decimal.Zero, err
	}
	if out.Error != nil {
		return decimal.Zero, fmt.Errorf("%s eth_getBalance: %s", chain, out.Error.Message)
	}
	wei, ok := new(big.Int).SetString(strings.TrimPrefix(out.Result, "0x"), 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s eth_getBalance: bad quantity %q", chain, out.Result)
	}
	return decimal.NewFromBigInt(wei, -evmDecimals), nil
}

func (c *Client) call(ctx context.Context, url, method string, params []interface{}, out interface{}) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params}).
		SetResult(out).
		Post(url)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: status %d", method, resp.StatusCode())
	}
	return nil
}
