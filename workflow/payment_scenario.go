package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/a2aflow/capability"
	"github.com/BaSui01/a2aflow/config"
	"github.com/BaSui01/a2aflow/discovery"
	"github.com/BaSui01/a2aflow/internal/metrics"
	"github.com/BaSui01/a2aflow/messaging"
	"github.com/BaSui01/a2aflow/openserv"
	"github.com/BaSui01/a2aflow/payment"
	"github.com/BaSui01/a2aflow/session"
	"github.com/BaSui01/a2aflow/transport"
)

// PaymentScenario is the two-agent demo: a provider (Agent A) advertises a
// service, a consumer (Agent B) discovers it, the provider requests payment,
// and the consumer settles on chain and confirms with the transaction hash.
type PaymentScenario struct {
	cfg       *config.Config
	client    *transport.Client
	logger    *zap.Logger
	collector *metrics.Collector

	provider *session.Session
	consumer *session.Session
	admin    *session.Session

	paymentMessageID string
	receipt          *payment.Receipt
	summary          *Summary
}

// NewPaymentScenario wires a scenario from configuration. collector may be nil.
func NewPaymentScenario(cfg *config.Config, client *transport.Client, logger *zap.Logger, collector *metrics.Collector) *PaymentScenario {
	return &PaymentScenario{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		collector: collector,
		provider:  session.New("provider", client, logger),
		consumer:  session.New("consumer", client, logger),
		admin:     session.New("admin", client, logger),
	}
}

// Run executes the scenario end to end and returns its summary. The summary
// is non-nil even when the run aborts.
func (p *PaymentScenario) Run(ctx context.Context) (*Summary, error) {
	driver := NewDriver("payment", p.logger, p.collector)
	p.summary = driver.Summary()
	driver.Add(
		Step{Name: "health_check", State: StateStart, Required: true, Run: p.healthCheck},
		Step{Name: "provision_agents", State: StateProvisioning, Required: true, Run: p.provisionAgents},
		Step{Name: "publish_capabilities", State: StateProvisioning, Required: true, Run: p.publishCapabilities},
		Step{Name: "discover_provider", State: StateDiscovery, Required: true, Run: p.discoverProvider},
		Step{Name: "fund_wallets", State: StateFunding, Required: false, Run: p.fundWallets},
		Step{Name: "send_payment_request", State: StateMessaging, Required: true, Run: p.sendPaymentRequest},
		Step{Name: "poll_payment_request", State: StateMessaging, Required: true, Run: p.pollPaymentRequest},
		Step{Name: "settle_payment", State: StateSettlement, Required: true, Run: p.settlePayment},
		Step{Name: "confirm_payment", State: StateConfirmation, Required: true, Run: p.confirmPayment},
		Step{Name: "openserv_bridge", State: StateConfirmation, Required: false, Run: p.openservBridge},
	)

	return driver.Run(ctx)
}

func (p *PaymentScenario) healthCheck(ctx context.Context) error {
	return p.client.Health(ctx)
}

// provisionAgents registers, authenticates, and creates a wallet for both
// agents. The two setups have no data dependency and run in parallel when
// configured to.
func (p *PaymentScenario) provisionAgents(ctx context.Context) error {
	if p.cfg.Workflow.ParallelProvision {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return p.provision(gctx, p.provider, "Provider", "Agent") })
		g.Go(func() error { return p.provision(gctx, p.consumer, "Consumer", "Agent") })
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		if err := p.provision(ctx, p.provider, "Provider", "Agent"); err != nil {
			return err
		}
		if err := p.provision(ctx, p.consumer, "Consumer", "Agent"); err != nil {
			return err
		}
	}

	p.summary.SetFact("provider_agent_id", p.provider.AgentID())
	p.summary.SetFact("consumer_agent_id", p.consumer.AgentID())
	p.summary.SetFact("provider_wallet", p.provider.WalletAddress())
	p.summary.SetFact("consumer_wallet", p.consumer.WalletAddress())
	return nil
}

func (p *PaymentScenario) provision(ctx context.Context, s *session.Session, firstName, lastName string) error {
	cred := session.NewRandomCredential(s.Actor(), "A2aflow!"+s.Actor())

	_, err := s.Register(ctx, cred, session.DefaultProfile(firstName, lastName))
	if err != nil && !errors.Is(err, session.ErrAlreadyRegistered) {
		return err
	}

	if _, err := s.Authenticate(ctx, cred); err != nil {
		return err
	}
	if _, err := s.CreateWallet(ctx, session.SolanaProviderType, true); err != nil {
		return err
	}
	return nil
}

func (p *PaymentScenario) publishCapabilities(ctx context.Context) error {
	svc := p.cfg.Workflow.ServiceName
	registrar := capability.NewRegistrar(p.client, p.provider.Token(), p.logger)

	ad := capability.Advertisement{
		Services:           []string{svc},
		Skills:             []string{svc},
		Pricing:            map[string]float64{svc: p.cfg.Workflow.PaymentAmountSOL},
		Status:             capability.StatusAvailable,
		MaxConcurrentTasks: 5,
		Description:        fmt.Sprintf("Provides %s for %v SOL per task", svc, p.cfg.Workflow.PaymentAmountSOL),
	}
	if err := registrar.Publish(ctx, ad); err != nil {
		return err
	}
	return registrar.RegisterService(ctx, svc, ad.Description, p.cfg.Workflow.PaymentAmountSOL)
}

// discoverProvider looks up the provider from the consumer side. The
// discovery index is eventually consistent after publication, so an empty
// result is retried once after a delay before being treated as failure.
func (p *PaymentScenario) discoverProvider(ctx context.Context) error {
	finder := discovery.NewClient(p.client, p.consumer.Token(), p.logger)
	svc := p.cfg.Workflow.ServiceName

	err := WaitForCondition(ctx, 2, p.cfg.Workflow.DiscoveryRetryDelay, func(ctx context.Context) (bool, error) {
		agents, err := finder.FindByService(ctx, svc)
		if err != nil {
			return false, err
		}
		for _, a := range agents {
			if a.AgentID == p.provider.AgentID() {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("provider %s not discoverable via service %q: %w", p.provider.AgentID(), svc, err)
	}
	return nil
}

// fundWallets moves SOL from the admin wallet to both agent wallets. The
// step is optional: without admin credentials the run continues and the
// summary is annotated that payment will likely fail.
func (p *PaymentScenario) fundWallets(ctx context.Context) error {
	if !p.cfg.FundingEnabled() {
		p.summary.AddNote("payment will likely fail because funding was skipped: no admin credentials configured")
		return fmt.Errorf("%w: no admin credentials configured", ErrSkipStep)
	}

	adminCred := session.Credential{
		Username: p.cfg.Admin.Username,
		Password: p.cfg.Admin.Password,
	}
	if _, err := p.admin.Authenticate(ctx, adminCred); err != nil {
		p.summary.AddNote("payment will likely fail because funding was skipped: admin authentication failed")
		return fmt.Errorf("admin authentication: %w", err)
	}

	fundingWallet := p.cfg.Admin.WalletAddress
	if fundingWallet == "" {
		if wallets := p.admin.ProviderWallets(session.SolanaProviderName); len(wallets) > 0 {
			fundingWallet = wallets[0].Address()
		}
	} else if !p.admin.HasWallet(session.SolanaProviderName, fundingWallet) {
		p.logger.Warn("configured admin wallet not listed in admin's provider wallets",
			zap.String("wallet", fundingWallet),
		)
	}
	if fundingWallet == "" {
		p.summary.AddNote("payment will likely fail because funding was skipped: admin has no funding wallet")
		return errors.New("admin has no funding wallet")
	}
	p.admin.UseWallet(fundingWallet)

	settler := payment.NewSettler(p.client, p.cfg.API.PaymentTimeout, p.logger, p.collector)
	amount := p.cfg.Admin.FundingAmountSOL
	for _, target := range []*session.Session{p.provider, p.consumer} {
		receipt, err := settler.Transfer(ctx, fundingWallet, target.WalletAddress(), amount,
			"Funding for "+target.Actor())
		if err != nil {
			p.summary.AddNote("payment will likely fail: funding transfer to %s failed", target.Actor())
			return fmt.Errorf("funding %s: %w", target.Actor(), err)
		}
		p.logger.Info("wallet funded",
			zap.String("actor", target.Actor()),
			zap.String("tx", receipt.TransactionHash),
		)
	}

	// Funded balances are not spendable until the transactions settle.
	return Sleep(ctx, p.cfg.Workflow.SettleDelay)
}

// sendPaymentRequest has the provider bill the consumer over JSON-RPC.
func (p *PaymentScenario) sendPaymentRequest(ctx context.Context) error {
	sender := messaging.NewClient(p.client, p.provider.Token(), p.logger)
	msgID, err := sender.RequestPayment(ctx,
		p.consumer.AgentID(),
		p.cfg.Workflow.PaymentAmountSOL,
		"Payment for "+p.cfg.Workflow.ServiceName,
	)
	if err != nil {
		return err
	}
	p.paymentMessageID = msgID
	p.summary.SetFact("payment_request_message_id", msgID)
	return nil
}

// pollPaymentRequest waits for the payment request to surface in the
// consumer's inbound queue. Delivery is at-least-once with no acks, so only
// presence is asserted, not count.
func (p *PaymentScenario) pollPaymentRequest(ctx context.Context) error {
	poller := messaging.NewClient(p.client, p.consumer.Token(), p.logger)

	err := WaitForCondition(ctx, 3, p.cfg.Workflow.MessagePollDelay, func(ctx context.Context) (bool, error) {
		msgs, err := poller.PollPending(ctx)
		if err != nil {
			return false, err
		}
		return messaging.FindByType(msgs, messaging.MethodPaymentRequest) != nil, nil
	})
	if err != nil {
		return fmt.Errorf("payment request never reached consumer queue: %w", err)
	}
	return nil
}

// settlePayment executes the on-chain transfer from consumer to provider.
// Exactly one attempt: a failed or timed-out transfer is never re-sent.
func (p *PaymentScenario) settlePayment(ctx context.Context) error {
	settler := payment.NewSettler(p.client, p.cfg.API.PaymentTimeout, p.logger, p.collector)

	receipt, err := settler.Transfer(ctx,
		p.consumer.WalletAddress(),
		p.provider.WalletAddress(),
		p.cfg.Workflow.PaymentAmountSOL,
		"Payment for "+p.cfg.Workflow.ServiceName,
	)
	if err != nil {
		return err
	}

	p.receipt = receipt
	p.summary.SetFact("transaction_hash", receipt.TransactionHash)
	return nil
}

// confirmPayment notifies the provider with the settled transaction hash.
func (p *PaymentScenario) confirmPayment(ctx context.Context) error {
	confirmer := messaging.NewClient(p.client, p.consumer.Token(), p.logger)
	params := map[string]any{
		"to_agent_id":      p.provider.AgentID(),
		"request":          "payment_confirmation",
		"transaction_hash": p.receipt.TransactionHash,
		"amount":           p.receipt.AmountSOL,
		"currency":         "SOL",
	}
	_, err := confirmer.SendRequest(ctx, messaging.MethodServiceRequest, params)
	return err
}

// openservBridge optionally registers the provider with the OpenSERV network
// and routes a workflow request through it.
func (p *PaymentScenario) openservBridge(ctx context.Context) error {
	if !p.cfg.OpenServEnabled() {
		return fmt.Errorf("%w: no openserv endpoint configured", ErrSkipStep)
	}

	bridge := openserv.NewClient(p.client, p.provider.Token(), p.logger)

	targetID := p.cfg.OpenServ.TargetAgentID
	if targetID == "" {
		reg := openserv.Registration{
			AgentID:      p.cfg.OpenServ.AgentID,
			Endpoint:     p.cfg.OpenServ.Endpoint,
			Capabilities: []string{p.cfg.Workflow.ServiceName},
			APIKey:       p.cfg.OpenServ.APIKey,
		}
		if reg.AgentID == "" {
			reg.AgentID = p.provider.AgentID()
		}
		if err := bridge.Register(ctx, reg); err != nil {
			return err
		}
		targetID = reg.AgentID
	}

	if p.cfg.OpenServ.WorkflowRequest == "" {
		return nil
	}
	res, err := bridge.Execute(ctx, targetID, p.cfg.OpenServ.WorkflowRequest, map[string]any{
		"service": p.cfg.Workflow.ServiceName,
	})
	if err != nil {
		return err
	}
	p.summary.SetFact("openserv_workflow_id", res.WorkflowID)
	if len(res.Output) > 0 {
		compact, _ := json.Marshal(json.RawMessage(res.Output))
		p.summary.SetFact("openserv_output", string(compact))
	}
	return nil
}
