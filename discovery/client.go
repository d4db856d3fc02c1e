// Package discovery queries the agent directory. Lookups are read-only and
// an empty match set is a normal outcome, never an error.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/transport"
)

// ErrLookupFailed wraps any transport or remote failure during a lookup.
var ErrLookupFailed = errors.New("discovery: lookup failed")

// Capabilities is the capability summary embedded in a descriptor.
type Capabilities struct {
	Services []string           `json:"services"`
	Skills   []string           `json:"skills"`
	Pricing  map[string]float64 `json:"pricing"`
}

// Connection describes how to reach the agent directly.
type Connection struct {
	Endpoint string `json:"endpoint"`
}

// AgentDescriptor is one directory entry.
type AgentDescriptor struct {
	AgentID      string       `json:"agentId"`
	Name         string       `json:"name"`
	Status       string       `json:"status"`
	Capabilities Capabilities `json:"capabilities"`
	Connection   Connection   `json:"connection"`
}

// Offers reports whether the descriptor lists the service.
func (d AgentDescriptor) Offers(service string) bool {
	for _, svc := range d.Capabilities.Services {
		if svc == service {
			return true
		}
	}
	return false
}

// Client performs directory lookups.
type Client struct {
	client *transport.Client
	logger *zap.Logger
	token  string
}

// NewClient creates a discovery client. token may be empty; only MyAgentCard
// requires authentication.
func NewClient(client *transport.Client, token string, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		logger: logger.With(zap.String("component", "discovery")),
		token:  token,
	}
}

// FindAll lists every agent in the directory.
func (c *Client) FindAll(ctx context.Context) ([]AgentDescriptor, error) {
	return c.list(ctx, "/api/a2a/agents", "discovery.all", nil)
}

// FindByService lists agents offering the named service.
func (c *Client) FindByService(ctx context.Context, service string) ([]AgentDescriptor, error) {
	path := "/api/a2a/agents/by-service/" + url.PathEscape(service)
	agents, err := c.list(ctx, path, "discovery.by_service", nil)
	if err != nil {
		return nil, err
	}
	c.logger.Info("service lookup",
		zap.String("service", service),
		zap.Int("matches", len(agents)),
	)
	return agents, nil
}

// DiscoverSERV queries the SERV discovery mirror for a service. The mirror
// indexes the same directory through the register-service announcements.
func (c *Client) DiscoverSERV(ctx context.Context, service string) ([]AgentDescriptor, error) {
	return c.list(ctx, "/api/a2a/agents/discover-serv", "discovery.serv",
		[]transport.CallOption{transport.WithQuery("service", service)})
}

// AgentCard fetches the full card of one agent by id.
func (c *Client) AgentCard(ctx context.Context, agentID string) (*AgentDescriptor, error) {
	path := "/api/a2a/agent-card/" + url.PathEscape(agentID)
	env, err := c.client.Call(ctx, http.MethodGet, path, nil,
		transport.WithOperation("discovery.card"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if env.IsError {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, env.Message)
	}

	var card AgentDescriptor
	if err := env.Decode(&card); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &card, nil
}

// MyAgentCard fetches the card of the authenticated agent.
func (c *Client) MyAgentCard(ctx context.Context) (*AgentDescriptor, error) {
	if c.token == "" {
		return nil, fmt.Errorf("%w: not authenticated", ErrLookupFailed)
	}

	env, err := c.client.Call(ctx, http.MethodGet, "/api/a2a/agent-card", nil,
		transport.WithBearer(c.token),
		transport.WithOperation("discovery.my_card"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if env.IsError {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, env.Message)
	}

	var card AgentDescriptor
	if err := env.Decode(&card); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &card, nil
}

func (c *Client) list(ctx context.Context, path, operation string, extra []transport.CallOption) ([]AgentDescriptor, error) {
	opts := append([]transport.CallOption{transport.WithOperation(operation)}, extra...)
	env, err := c.client.Call(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if env.IsError {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, env.Message)
	}

	var agents []AgentDescriptor
	if err := transport.UnmarshalArray(env.Result, &agents); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return agents, nil
}
