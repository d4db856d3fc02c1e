package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/capability"
	"github.com/BaSui01/a2aflow/config"
	"github.com/BaSui01/a2aflow/discovery"
	"github.com/BaSui01/a2aflow/internal/metrics"
	"github.com/BaSui01/a2aflow/session"
	"github.com/BaSui01/a2aflow/transport"
)

// DiscoveryScenario provisions a single agent, publishes its capability, and
// exercises every directory lookup path. Read-only apart from the
// provisioning itself; no funds move.
type DiscoveryScenario struct {
	cfg       *config.Config
	client    *transport.Client
	logger    *zap.Logger
	collector *metrics.Collector

	agent   *session.Session
	summary *Summary
}

// NewDiscoveryScenario wires a scenario from configuration.
func NewDiscoveryScenario(cfg *config.Config, client *transport.Client, logger *zap.Logger, collector *metrics.Collector) *DiscoveryScenario {
	return &DiscoveryScenario{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		collector: collector,
		agent:     session.New("scout", client, logger),
	}
}

// Run executes the scenario and returns its summary.
func (d *DiscoveryScenario) Run(ctx context.Context) (*Summary, error) {
	driver := NewDriver("discovery", d.logger, d.collector)
	d.summary = driver.Summary()
	driver.Add(
		Step{Name: "health_check", State: StateStart, Required: true, Run: func(ctx context.Context) error {
			return d.client.Health(ctx)
		}},
		Step{Name: "provision_agent", State: StateProvisioning, Required: true, Run: d.provisionAgent},
		Step{Name: "publish_capabilities", State: StateProvisioning, Required: true, Run: d.publishCapabilities},
		Step{Name: "lookup_directory", State: StateDiscovery, Required: true, Run: d.lookupDirectory},
		Step{Name: "lookup_serv_mirror", State: StateDiscovery, Required: false, Run: d.lookupSERVMirror},
		Step{Name: "fetch_agent_cards", State: StateDiscovery, Required: true, Run: d.fetchAgentCards},
	)
	return driver.Run(ctx)
}

func (d *DiscoveryScenario) provisionAgent(ctx context.Context) error {
	cred := session.NewRandomCredential("scout", "A2aflow!scout")

	_, err := d.agent.Register(ctx, cred, session.DefaultProfile("Scout", "Agent"))
	if err != nil && !errors.Is(err, session.ErrAlreadyRegistered) {
		return err
	}
	if _, err := d.agent.Authenticate(ctx, cred); err != nil {
		return err
	}
	d.summary.SetFact("agent_id", d.agent.AgentID())
	return nil
}

func (d *DiscoveryScenario) publishCapabilities(ctx context.Context) error {
	svc := d.cfg.Workflow.ServiceName
	registrar := capability.NewRegistrar(d.client, d.agent.Token(), d.logger)

	ad := capability.Advertisement{
		Services:           []string{svc},
		Status:             capability.StatusAvailable,
		MaxConcurrentTasks: 1,
		Description:        "Discovery scenario agent",
	}
	if err := registrar.Publish(ctx, ad); err != nil {
		return err
	}
	return registrar.RegisterService(ctx, svc, ad.Description, 0)
}

// lookupDirectory verifies the agent became visible via the full listing and
// the by-service index, retrying once for index propagation.
func (d *DiscoveryScenario) lookupDirectory(ctx context.Context) error {
	finder := discovery.NewClient(d.client, d.agent.Token(), d.logger)
	svc := d.cfg.Workflow.ServiceName

	err := WaitForCondition(ctx, 2, d.cfg.Workflow.DiscoveryRetryDelay, func(ctx context.Context) (bool, error) {
		agents, err := finder.FindByService(ctx, svc)
		if err != nil {
			return false, err
		}
		return containsAgent(agents, d.agent.AgentID()), nil
	})
	if err != nil {
		return fmt.Errorf("agent not visible via service %q: %w", svc, err)
	}

	all, err := finder.FindAll(ctx)
	if err != nil {
		return err
	}
	d.summary.SetFact("directory_size", strconv.Itoa(len(all)))
	return nil
}

// lookupSERVMirror checks the secondary discovery index. Optional: mirror
// propagation lags the primary directory on some deployments.
func (d *DiscoveryScenario) lookupSERVMirror(ctx context.Context) error {
	finder := discovery.NewClient(d.client, d.agent.Token(), d.logger)

	agents, err := finder.DiscoverSERV(ctx, d.cfg.Workflow.ServiceName)
	if err != nil {
		return err
	}
	if !containsAgent(agents, d.agent.AgentID()) {
		return fmt.Errorf("agent %s not yet in SERV mirror", d.agent.AgentID())
	}
	return nil
}

func (d *DiscoveryScenario) fetchAgentCards(ctx context.Context) error {
	finder := discovery.NewClient(d.client, d.agent.Token(), d.logger)

	mine, err := finder.MyAgentCard(ctx)
	if err != nil {
		return err
	}
	byID, err := finder.AgentCard(ctx, d.agent.AgentID())
	if err != nil {
		return err
	}
	if mine.AgentID != byID.AgentID {
		return fmt.Errorf("card mismatch: my card says %s, lookup by id says %s", mine.AgentID, byID.AgentID)
	}
	d.summary.SetFact("services", strings.Join(byID.Capabilities.Services, ","))
	return nil
}

func containsAgent(agents []discovery.AgentDescriptor, id string) bool {
	for _, a := range agents {
		if a.AgentID == id {
			return true
		}
	}
	return false
}
