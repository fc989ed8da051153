package chainrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-ledger/internal/exchange"
)

func rpcServer(t *testing.T, result string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,` + result + `}`))
	}))
}

func TestGetBalanceEVM(t *testing.T) {
	// 1.5 ETH in wei
	srv := rpcServer(t, `"result":"0x14d1120d7b160000"`)
	defer srv.Close()

	c := NewClient(map[string]string{"Ethereum": srv.URL}, time.Second)
	b, err := c.GetBalance(context.Background(), "ethereum", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "1.5", b.String())
}

func TestGetBalanceSolana(t *testing.T) {
	srv := rpcServer(t, `"result":{"context":{"slot":1},"value":2500000000}`)
	defer srv.Close()

	c := NewClient(map[string]string{"solana": srv.URL}, time.Second)
	b, err := c.GetBalance(context.Background(), "solana", "So1")
	require.NoError(t, err)
	assert.Equal(t, "2.5", b.String())
}

func TestGetBalanceErrors(t *testing.T) {
	srv := rpcServer(t, `"error":{"code":-32602,"message":"invalid address"}`)
	defer srv.Close()
	c := NewClient(map[string]string{"polygon": srv.URL}, time.Second)

	_, err := c.GetBalance(context.Background(), "polygon", "bad")
	assert.ErrorContains(t, err, "invalid address")

	_, err = c.GetBalance(context.Background(), "cardano", "addr")
	assert.True(t, errors.Is(err, exchange.ErrUnknownChain))
}
