package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/a2aflow/transport"
)

func newTestSettler(t *testing.T, handler http.Handler) *Settler {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := transport.DefaultClientConfig()
	cfg.BaseURL = srv.URL
	client := transport.NewClient(cfg, zaptest.NewLogger(t), nil)
	return NewSettler(client, 10*time.Second, zaptest.NewLogger(t), nil)
}

func TestToLamports(t *testing.T) {
	assert.Equal(t, int64(1_000_000_000), ToLamports(1))
	assert.Equal(t, int64(10_000_000), ToLamports(0.01))
	assert.Equal(t, int64(1), ToLamports(0.0000000014)) // rounds to nearest
	assert.Equal(t, int64(0), ToLamports(0))
	assert.Equal(t, 0.01, ToSOL(10_000_000))
}

func TestToLamports_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(0, 1_000_000).Draw(t, "a")
		b := rapid.Float64Range(0, 1_000_000).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		la, lb := ToLamports(a), ToLamports(b)
		if la > lb {
			t.Fatalf("ToLamports not monotonic: %v -> %d, %v -> %d", a, la, b, lb)
		}
	})
}

func TestTransfer(t *testing.T) {
	var got sendRequest
	calls := 0
	s := newTestSettler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/api/solana/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 200,
			"result": map[string]any{
				"isError": false,
				"result":  map[string]any{"transactionHash": "5x0abc"},
			},
		})
	}))

	receipt, err := s.Transfer(context.Background(), "So1From", "So1To", 0.01, "analysis fee")
	require.NoError(t, err)
	assert.Equal(t, "5x0abc", receipt.TransactionHash)
	assert.Equal(t, int64(10_000_000), receipt.Lamports)
	assert.Equal(t, 0.01, receipt.AmountSOL)
	assert.Equal(t, 1, calls)

	assert.Equal(t, "So1From", got.FromAccount.PublicKey)
	assert.Equal(t, "So1To", got.ToAccount.PublicKey)
	assert.Equal(t, int64(10_000_000), got.Amount)
	assert.Equal(t, "analysis fee", got.MemoText)
	assert.Equal(t, int64(5000), got.Lampposts)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	s := newTestSettler(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isError": true,
			"message": "Insufficient funds for transaction",
		})
	}))

	_, err := s.Transfer(context.Background(), "So1From", "So1To", 5, "")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorIs(t, err, ErrTransferFailed)
}

func TestTransfer_RemoteRejection(t *testing.T) {
	s := newTestSettler(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isError": true,
			"message": "invalid destination address",
		})
	}))

	_, err := s.Transfer(context.Background(), "So1From", "So1To", 0.01, "")
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorContains(t, err, "invalid destination")
}

func TestTransfer_NoHash(t *testing.T) {
	s := newTestSettler(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "pending"})
	}))

	_, err := s.Transfer(context.Background(), "So1From", "So1To", 0.01, "")
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorContains(t, err, "no transaction hash")
}

func TestTransfer_NoRetryOnFailure(t *testing.T) {
	calls := 0
	s := newTestSettler(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := s.Transfer(context.Background(), "So1From", "So1To", 0.01, "")
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, 1, calls, "a failed transfer must never be retried")
}

func TestTransfer_InvalidArgs(t *testing.T) {
	s := newTestSettler(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := s.Transfer(context.Background(), "", "So1To", 0.01, "")
	assert.ErrorIs(t, err, ErrTransferFailed)

	_, err = s.Transfer(context.Background(), "So1From", "So1To", -1, "")
	assert.ErrorIs(t, err, ErrTransferFailed)
}
