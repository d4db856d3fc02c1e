// Package openserv bridges platform agents to the OpenSERV workflow network.
// The bridge is optional; it is only exercised when an OpenSERV endpoint and
// API key are configured.
package openserv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/transport"
)

// ErrBridgeFailed wraps registration and execution failures.
var ErrBridgeFailed = errors.New("openserv: bridge call failed")

// Registration binds a platform agent to an OpenSERV agent identity.
type Registration struct {
	AgentID      string   `json:"openServAgentId"`
	Endpoint     string   `json:"openServEndpoint"`
	Capabilities []string `json:"capabilities"`
	APIKey       string   `json:"apiKey"`
}

// WorkflowResult is the outcome of a remote workflow execution.
type WorkflowResult struct {
	WorkflowID string          `json:"workflowId"`
	Status     string          `json:"status"`
	Output     json.RawMessage `json:"output"`
}

// Client talks to the bridge endpoints on behalf of one authenticated agent.
type Client struct {
	client *transport.Client
	logger *zap.Logger
	token  string
}

// NewClient creates an OpenSERV bridge client.
func NewClient(client *transport.Client, token string, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		logger: logger.With(zap.String("component", "openserv")),
		token:  token,
	}
}

// Register announces the agent to the OpenSERV network.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if reg.AgentID == "" || reg.Endpoint == "" {
		return fmt.Errorf("%w: agent id and endpoint are required", ErrBridgeFailed)
	}

	env, err := c.client.Call(ctx, http.MethodPost, "/api/a2a/openserv/register", reg,
		transport.WithBearer(c.token),
		transport.WithOperation("openserv.register"),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBridgeFailed, err)
	}
	if env.IsError {
		return fmt.Errorf("%w: %s", ErrBridgeFailed, env.Message)
	}

	c.logger.Info("openserv agent registered",
		zap.String("openserv_agent_id", reg.AgentID),
		zap.String("endpoint", reg.Endpoint),
	)
	return nil
}

// Execute runs a named workflow on another agent through the bridge.
func (c *Client) Execute(ctx context.Context, toAgentID, workflowRequest string, params map[string]any) (*WorkflowResult, error) {
	if toAgentID == "" || workflowRequest == "" {
		return nil, fmt.Errorf("%w: target agent and workflow request are required", ErrBridgeFailed)
	}

	body := map[string]any{
		"toAgentId":          toAgentID,
		"workflowRequest":    workflowRequest,
		"workflowParameters": params,
	}
	env, err := c.client.Call(ctx, http.MethodPost, "/api/a2a/workflow/execute", body,
		transport.WithBearer(c.token),
		transport.WithOperation("openserv.execute"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeFailed, err)
	}
	if env.IsError {
		return nil, fmt.Errorf("%w: %s", ErrBridgeFailed, env.Message)
	}

	var res WorkflowResult
	if err := env.Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeFailed, err)
	}

	c.logger.Info("workflow executed",
		zap.String("to_agent", toAgentID),
		zap.String("workflow", workflowRequest),
		zap.String("status", res.Status),
	)
	return &res, nil
}
