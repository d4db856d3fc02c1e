// Package capability publishes what an agent can do. Publishing is a full
// replace of the agent's advertisement, never a merge, and re-registering a
// service name an agent already holds is a no-op on the platform side.
package capability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/transport"
)

// Agent availability states understood by the platform.
const (
	StatusAvailable = "available"
	StatusBusy      = "busy"
	StatusOffline   = "offline"
)

// Registration sentinels.
var (
	ErrInvalidAdvertisement = errors.New("capability: invalid advertisement")
	ErrPublishFailed        = errors.New("capability: publish failed")
)

// Advertisement is the complete capability statement of one agent.
type Advertisement struct {
	// Services are the service names the agent offers. At least one required.
	Services []string `json:"services"`
	// Skills are free-form skill tags, informational only.
	Skills []string `json:"skills"`
	// Pricing maps service name to its price in SOL. Every priced service
	// must be offered.
	Pricing map[string]float64 `json:"pricing"`
	// Status is one of the Status* constants.
	Status string `json:"status"`
	// MaxConcurrentTasks caps parallel task intake. Must be positive.
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
	// Description is a human-readable summary.
	Description string `json:"description"`
}

// Validate checks the advertisement's internal consistency before it is sent.
func (a Advertisement) Validate() error {
	if len(a.Services) == 0 {
		return fmt.Errorf("%w: no services offered", ErrInvalidAdvertisement)
	}
	switch a.Status {
	case StatusAvailable, StatusBusy, StatusOffline:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAdvertisement, a.Status)
	}
	if a.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("%w: max_concurrent_tasks must be positive", ErrInvalidAdvertisement)
	}

	offered := make(map[string]struct{}, len(a.Services))
	for _, svc := range a.Services {
		if svc == "" {
			return fmt.Errorf("%w: empty service name", ErrInvalidAdvertisement)
		}
		offered[svc] = struct{}{}
	}
	for svc, price := range a.Pricing {
		if _, ok := offered[svc]; !ok {
			return fmt.Errorf("%w: pricing for unoffered service %q", ErrInvalidAdvertisement, svc)
		}
		if price < 0 {
			return fmt.Errorf("%w: negative price for service %q", ErrInvalidAdvertisement, svc)
		}
	}
	return nil
}

// Registrar publishes advertisements for one authenticated agent.
type Registrar struct {
	client *transport.Client
	logger *zap.Logger
	token  string
}

// NewRegistrar creates a Registrar bound to the agent's bearer token.
func NewRegistrar(client *transport.Client, token string, logger *zap.Logger) *Registrar {
	return &Registrar{
		client: client,
		logger: logger.With(zap.String("component", "capability")),
		token:  token,
	}
}

type publishResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Publish replaces the agent's advertisement on the platform. An invalid
// advertisement is rejected locally before any request is sent.
func (r *Registrar) Publish(ctx context.Context, ad Advertisement) error {
	if err := ad.Validate(); err != nil {
		return err
	}

	env, err := r.client.Call(ctx, http.MethodPost, "/api/a2a/agent/capabilities", ad,
		transport.WithBearer(r.token),
		transport.WithOperation("capability.publish"),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	if env.IsError {
		return fmt.Errorf("%w: %s", ErrPublishFailed, env.Message)
	}

	var res publishResponse
	if err := env.Decode(&res); err == nil && !res.Success && res.Message != "" {
		return fmt.Errorf("%w: %s", ErrPublishFailed, res.Message)
	}

	r.logger.Info("capabilities published",
		zap.Strings("services", ad.Services),
		zap.String("status", ad.Status),
	)
	return nil
}

// RegisterService announces a single service on the discovery mirror.
// Idempotent: re-registering a held service name succeeds without effect.
func (r *Registrar) RegisterService(ctx context.Context, service, description string, priceSOL float64) error {
	if service == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidAdvertisement)
	}

	body := map[string]any{
		"service":     service,
		"description": description,
		"price":       priceSOL,
	}
	env, err := r.client.Call(ctx, http.MethodPost, "/api/a2a/agent/register-service", body,
		transport.WithBearer(r.token),
		transport.WithOperation("capability.register_service"),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	if env.IsError {
		return fmt.Errorf("%w: %s", ErrPublishFailed, env.Message)
	}

	r.logger.Info("service registered", zap.String("service", service))
	return nil
}
