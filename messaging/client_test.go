package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/a2aflow/transport"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := transport.DefaultClientConfig()
	cfg.BaseURL = srv.URL
	return NewClient(transport.NewClient(cfg, zaptest.NewLogger(t), nil), "tok", zaptest.NewLogger(t))
}

func TestSendRequest(t *testing.T) {
	var got rpcRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/a2a/jsonrpc", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 200,
			"result": map[string]any{
				"isError": false,
				"result":  map[string]any{"message_id": "msg-1"},
			},
		})
	}))

	id, err := c.SendRequest(context.Background(), MethodCapabilityQuery, map[string]string{"service": "data-analysis"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, MethodCapabilityQuery, got.Method)
	assert.NotEmpty(t, got.ID)
}

func TestSendRequest_FreshIDs(t *testing.T) {
	var ids []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)
		_ = json.NewEncoder(w).Encode(map[string]any{"message_id": "msg"})
	}))

	_, err := c.SendRequest(context.Background(), MethodPing, nil)
	require.NoError(t, err)
	_, err = c.SendRequest(context.Background(), MethodPing, nil)
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestSendRequest_RPCError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 200,
			"result": map[string]any{
				"isError": false,
				"result": map[string]any{
					"error": map[string]any{"code": -32601, "message": "method not found"},
				},
			},
		})
	}))

	_, err := c.SendRequest(context.Background(), "bogus", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "method not found", rpcErr.Message)
}

func TestRequestPayment(t *testing.T) {
	var got rpcRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"message_id": "msg-pay"})
	}))

	id, err := c.RequestPayment(context.Background(), "agent-2", 0.01, "analysis fee")
	require.NoError(t, err)
	assert.Equal(t, "msg-pay", id)
	assert.Equal(t, MethodPaymentRequest, got.Method)

	params, err := json.Marshal(got.Params)
	require.NoError(t, err)
	var p PaymentRequestParams
	require.NoError(t, json.Unmarshal(params, &p))
	assert.Equal(t, "agent-2", p.ToAgentID)
	assert.Equal(t, 0.01, p.Amount)
	assert.Equal(t, "SOL", p.Currency)
}

func TestRequestPayment_InvalidArgs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := c.RequestPayment(context.Background(), "", 0.01, "")
	assert.ErrorIs(t, err, ErrSendFailed)

	_, err = c.RequestPayment(context.Background(), "agent-2", 0, "")
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestPollPending(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/a2a/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 200,
			"result": map[string]any{
				"isError": false,
				"result": map[string]any{
					"$values": []map[string]any{
						{"messageType": "payment_request", "content": map[string]any{"amount": 0.01}, "sender": "agent-1"},
						{"messageType": "ping", "sender": "agent-3"},
					},
				},
			},
		})
	}))

	msgs, err := c.PollPending(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	pay := FindByType(msgs, "payment_request")
	require.NotNil(t, pay)
	assert.Equal(t, "agent-1", pay.Sender)

	assert.Nil(t, FindByType(msgs, "settlement"))
}

func TestPollPending_Empty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{})
	}))

	msgs, err := c.PollPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
