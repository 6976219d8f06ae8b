package SOLRPC

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeRPC answers JSON-RPC calls by method name and records which were made.
type fakeRPC struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(params json.RawMessage) (interface{}, *rpcError)
}

func newFakeRPC(t *testing.T, handlers map[string]func(params json.RawMessage) (interface{}, *rpcError)) (*fakeRPC, string) {
	t.Helper()
	f := &fakeRPC{calls: map[string]int{}, handlers: handlers}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.calls[req.Method]++
		h, ok := f.handlers[req.Method]
		f.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = rpcError{Code: -32601, Message: "method not found: " + req.Method}
		} else if result, rerr := h(req.Params); rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeRPC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func withContext(value interface{}) map[string]interface{} {
	return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": value}
}

func newTestClient(t *testing.T, urls ...string) (*Client, solana.PrivateKey, solana.PublicKey) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()

	c, err := New(Config{
		RPCList:            urls,
		SecretKey:          key.String(),
		Mint:               mint.String(),
		Decimals:           6,
		ConfirmInterval:    time.Millisecond,
		ConfirmMaxAttempts: 3,
	}, zap.NewNop())
	require.NoError(t, err)
	return c, key, mint
}

var (
	testBlockhash = solana.Hash{7, 7, 7}
	testSignature = solana.Signature{1, 2, 3}
)

func blockhashHandler(json.RawMessage) (interface{}, *rpcError) {
	return withContext(map[string]interface{}{"blockhash": testBlockhash.String(), "lastValidBlockHeight": 100}), nil
}

func sendHandler(json.RawMessage) (interface{}, *rpcError) {
	return testSignature.String(), nil
}

func statusHandler(confirmation string, txErr interface{}) func(json.RawMessage) (interface{}, *rpcError) {
	return func(json.RawMessage) (interface{}, *rpcError) {
		return withContext([]interface{}{map[string]interface{}{
			"slot": 10, "confirmations": nil, "err": txErr, "confirmationStatus": confirmation,
		}}), nil
	}
}

func TestParseKeypair(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fromBase58, err := ParseKeypair(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromBase58.PublicKey())

	bytesList := make([]string, len(key))
	for i, b := range key {
		bytesList[i] = fmt.Sprint(b)
	}
	fromList, err := ParseKeypair("[" + strings.Join(bytesList, ", ") + "]")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromList.PublicKey())

	fromBareList, err := ParseKeypair(strings.Join(bytesList, ","))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromBareList.PublicKey())

	_, err = ParseKeypair(base58.Encode(key[:32]))
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	tampered := append([]byte{}, key...)
	tampered[63] ^= 0xff
	_, err = ParseKeypair(base58.Encode(tampered))
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	_, err = ParseKeypair("1,2,300")
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	_, err = ParseKeypair("")
	assert.ErrorIs(t, err, ErrInvalidKeypair)
}

func TestWithClient_FailsOverToNextEndpoint(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	_, good := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"getTokenAccountBalance": func(json.RawMessage) (interface{}, *rpcError) {
			return withContext(map[string]interface{}{
				"amount": "9864", "decimals": 2, "uiAmount": 98.64, "uiAmountString": "98.64",
			}), nil
		},
	})

	c, _, _ := newTestClient(t, broken.URL, good)
	bal, err := c.AppBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9864", bal.Amount)
	assert.EqualValues(t, 2, bal.Decimals)
	assert.Equal(t, "98.64", bal.UIAmountString)
}

func TestSignatureStatus(t *testing.T) {
	cases := []struct {
		name    string
		handler func(json.RawMessage) (interface{}, *rpcError)
		want    TxStatus
	}{
		{"finalized", statusHandler("finalized", nil), TxConfirmed},
		{"confirmed", statusHandler("confirmed", nil), TxConfirmed},
		{"processed", statusHandler("processed", nil), TxProcessed},
		{"failed", statusHandler("confirmed", map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}), TxFailed},
		{"unknown", func(json.RawMessage) (interface{}, *rpcError) { return withContext([]interface{}{nil}), nil }, TxUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, url := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
				"getSignatureStatuses": tc.handler,
			})
			c, _, _ := newTestClient(t, url)

			got, err := c.SignatureStatus(context.Background(), testSignature.String())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPollConfirmation(t *testing.T) {
	seq := func(statuses ...TxStatus) (func(context.Context) (TxStatus, error), *int) {
		calls := 0
		return func(context.Context) (TxStatus, error) {
			s := statuses[calls]
			calls++
			if s == TxUnknown {
				return TxUnknown, errors.New("node lagging")
			}
			return s, nil
		}, &calls
	}

	fetch, calls := seq(TxUnknown, TxProcessed, TxConfirmed)
	require.NoError(t, PollConfirmation(context.Background(), fetch, time.Millisecond, 5, zap.NewNop()))
	assert.Equal(t, 3, *calls)

	fetch, _ = seq(TxProcessed, TxFailed)
	assert.ErrorIs(t, PollConfirmation(context.Background(), fetch, time.Millisecond, 5, zap.NewNop()), ErrTransactionFailed)

	fetch, calls = seq(TxProcessed, TxProcessed, TxProcessed, TxConfirmed)
	assert.ErrorIs(t, PollConfirmation(context.Background(), fetch, time.Millisecond, 3, zap.NewNop()), ErrUnconfirmed)
	assert.Equal(t, 3, *calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetch, _ = seq(TxProcessed, TxProcessed)
	assert.ErrorIs(t, PollConfirmation(ctx, fetch, time.Hour, 2, zap.NewNop()), context.Canceled)
}

func TestResolveTokenAccount_Existing(t *testing.T) {
	f, url := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"getAccountInfo": func(json.RawMessage) (interface{}, *rpcError) {
			return withContext(map[string]interface{}{
				"data": []string{"", "base64"}, "executable": false, "lamports": 2039280,
				"owner": solana.TokenProgramID.String(), "rentEpoch": 361, "space": 165,
			}), nil
		},
	})
	c, _, mint := newTestClient(t, url)
	owner := solana.NewWallet().PublicKey()

	ata, err := c.ResolveTokenAccount(context.Background(), owner.String())
	require.NoError(t, err)

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want.String(), ata)
	assert.Zero(t, f.count("sendTransaction"))
}

func TestResolveTokenAccount_CreatesMissing(t *testing.T) {
	f, url := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"getAccountInfo":       func(json.RawMessage) (interface{}, *rpcError) { return withContext(nil), nil },
		"getLatestBlockhash":   blockhashHandler,
		"sendTransaction":      sendHandler,
		"getSignatureStatuses": statusHandler("confirmed", nil),
	})
	c, _, mint := newTestClient(t, url)
	owner := solana.NewWallet().PublicKey()

	ata, err := c.ResolveTokenAccount(context.Background(), owner.String())
	require.NoError(t, err)

	want, _, _ := solana.FindAssociatedTokenAddress(owner, mint)
	assert.Equal(t, want.String(), ata)
	assert.Equal(t, 1, f.count("sendTransaction"))
}

func TestResolveTokenAccount_InvalidOwner(t *testing.T) {
	c, _, _ := newTestClient(t, "http://127.0.0.1:0")
	_, err := c.ResolveTokenAccount(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSignTransfer(t *testing.T) {
	f, url := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"getLatestBlockhash": blockhashHandler,
	})
	c, _, _ := newTestClient(t, url)

	signed, err := c.SignTransfer(context.Background(), solana.NewWallet().PublicKey().String(), 357142)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Signature)
	assert.Equal(t, uint64(100), signed.LastValidBlockHeight)
	assert.Zero(t, f.count("sendTransaction"))

	_, err = c.SignTransfer(context.Background(), "not-a-key", 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestBroadcast_ResendsSameTransaction(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	f, url := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"getLatestBlockhash": blockhashHandler,
		"sendTransaction": func(params json.RawMessage) (interface{}, *rpcError) {
			var args []json.RawMessage
			require.NoError(t, json.Unmarshal(params, &args))
			var encoded string
			require.NoError(t, json.Unmarshal(args[0], &encoded))

			mu.Lock()
			defer mu.Unlock()
			sent = append(sent, encoded)
			if len(sent) == 1 {
				// accepted by the node, the answer is lost
				return nil, &rpcError{Code: -32005, Message: "Node is unhealthy"}
			}
			return testSignature.String(), nil
		},
	})
	c, _, _ := newTestClient(t, url)

	signed, err := c.SignTransfer(context.Background(), solana.NewWallet().PublicKey().String(), 357142)
	require.NoError(t, err)

	err = c.Broadcast(context.Background(), signed)
	assert.ErrorIs(t, err, ErrBroadcast)
	require.NoError(t, c.Broadcast(context.Background(), signed))

	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1])
	assert.Equal(t, 1, f.count("getLatestBlockhash"))

	// wire format: signature count, then the payer signature
	raw, err := base64.StdEncoding.DecodeString(sent[0])
	require.NoError(t, err)
	want, err := solana.SignatureFromBase58(signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, want[:], raw[1:65])
}

func TestBroadcast_Unsigned(t *testing.T) {
	c, _, _ := newTestClient(t, "http://127.0.0.1:0")
	err := c.Broadcast(context.Background(), &SignedTransfer{Signature: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBroadcast)
}

func TestBlockhashExpired(t *testing.T) {
	_, url := newFakeRPC(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"getBlockHeight": func(json.RawMessage) (interface{}, *rpcError) { return 150, nil },
	})
	c, _, _ := newTestClient(t, url)

	expired, err := c.BlockhashExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = c.BlockhashExpired(context.Background(), 150)
	require.NoError(t, err)
	assert.False(t, expired)
}
