// Package messaging carries agent-to-agent traffic over the platform's
// JSON-RPC bridge. Delivery of pending messages is at-least-once and there is
// no acknowledgement protocol; consumers must tolerate duplicates.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/transport"
)

// JSON-RPC method names accepted by the bridge.
const (
	MethodPing            = "ping"
	MethodPaymentRequest  = "payment_request"
	MethodCapabilityQuery = "capability_query"
	MethodServiceRequest  = "service_request"
)

// ErrSendFailed wraps transport-level send failures.
var ErrSendFailed = errors.New("messaging: send failed")

// RPCError is an application-level JSON-RPC error returned by the remote
// agent. Distinct from ErrSendFailed: the request was delivered and rejected.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("messaging: rpc error %d: %s", e.Code, e.Message)
}

// PendingMessage is one queued inbound message.
type PendingMessage struct {
	MessageType string          `json:"messageType"`
	Content     json.RawMessage `json:"content"`
	Sender      string          `json:"sender"`
}

// PaymentRequestParams are the parameters of a payment_request call.
type PaymentRequestParams struct {
	ToAgentID   string  `json:"to_agent_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Currency    string  `json:"currency"`
}

// Client sends JSON-RPC requests and polls the inbound queue for one agent.
type Client struct {
	client *transport.Client
	logger *zap.Logger
	token  string
}

// NewClient creates a messaging client bound to the agent's bearer token.
func NewClient(client *transport.Client, token string, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		logger: logger.With(zap.String("component", "messaging")),
		token:  token,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

type rpcResult struct {
	MessageID string    `json:"message_id"`
	Error     *RPCError `json:"error"`
}

// SendRequest issues one JSON-RPC call and returns the remote message id.
// Each call gets a fresh request id; correlation is the caller's concern.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	}

	env, err := c.client.Call(ctx, http.MethodPost, "/api/a2a/jsonrpc", req,
		transport.WithBearer(c.token),
		transport.WithOperation("messaging.rpc."+method),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if env.IsError {
		return "", fmt.Errorf("%w: %s", ErrSendFailed, env.Message)
	}

	var res rpcResult
	if err := env.Decode(&res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if res.Error != nil {
		return "", res.Error
	}

	c.logger.Debug("rpc sent",
		zap.String("method", method),
		zap.String("request_id", req.ID),
		zap.String("message_id", res.MessageID),
	)
	return res.MessageID, nil
}

// RequestPayment asks another agent to pay. The amount is denominated in SOL.
func (c *Client) RequestPayment(ctx context.Context, toAgentID string, amountSOL float64, description string) (string, error) {
	if toAgentID == "" {
		return "", fmt.Errorf("%w: empty recipient agent id", ErrSendFailed)
	}
	if amountSOL <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %v", ErrSendFailed, amountSOL)
	}
	return c.SendRequest(ctx, MethodPaymentRequest, PaymentRequestParams{
		ToAgentID:   toAgentID,
		Amount:      amountSOL,
		Description: description,
		Currency:    "SOL",
	})
}

// Ping checks reachability of another agent through the bridge.
func (c *Client) Ping(ctx context.Context, toAgentID string) error {
	_, err := c.SendRequest(ctx, MethodPing, map[string]string{"to_agent_id": toAgentID})
	return err
}

// PollPending fetches the inbound queue once. Messages stay queued after the
// read; repeated polls may return the same message again.
func (c *Client) PollPending(ctx context.Context) ([]PendingMessage, error) {
	env, err := c.client.Call(ctx, http.MethodGet, "/api/a2a/messages", nil,
		transport.WithBearer(c.token),
		transport.WithOperation("messaging.poll"),
	)
	if err != nil {
		return nil, err
	}
	if env.IsError {
		return nil, fmt.Errorf("messaging: poll rejected: %s", env.Message)
	}

	var msgs []PendingMessage
	if err := transport.UnmarshalArray(env.Result, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FindByType returns the first pending message of the given type, or nil.
func FindByType(msgs []PendingMessage, messageType string) *PendingMessage {
	for i := range msgs {
		if msgs[i].MessageType == messageType {
			return &msgs[i]
		}
	}
	return nil
}
