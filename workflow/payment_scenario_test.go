package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/a2aflow/config"
	"github.com/BaSui01/a2aflow/transport"
)

// fakePlatform is an in-memory stand-in for the remote API, covering every
// endpoint the scenarios touch.
type fakePlatform struct {
	mu         sync.Mutex
	nextAgent  int
	nextTx     int
	agents     map[string]string   // username -> agent id
	tokens     map[string]string   // token -> agent id
	services   map[string][]string // service -> agent ids
	inbox      map[string][]map[string]any
	transfers  []map[string]any
	adminAllow bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		agents:   make(map[string]string),
		tokens:   make(map[string]string),
		services: make(map[string][]string),
		inbox:    make(map[string][]map[string]any),
	}
}

func (f *fakePlatform) wrap(inner any) map[string]any {
	return map[string]any{
		"statusCode": 200,
		"result":     map[string]any{"isError": false, "result": inner},
	}
}

func (f *fakePlatform) agentForToken(r *http.Request) string {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return f.tokens[tok]
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Healthy")
	})

	mux.HandleFunc("/api/avatar/register", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req struct {
			Username string `json:"username"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := f.agents[req.Username]; ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"statusCode": 200,
				"result":     map[string]any{"isError": true, "message": "username already exists"},
			})
			return
		}
		f.nextAgent++
		id := fmt.Sprintf("agent-%d", f.nextAgent)
		f.agents[req.Username] = id
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{"id": id}))
	})

	mux.HandleFunc("/api/avatar/authenticate", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req struct {
			Username string `json:"username"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if req.Username == "admin" {
			if !f.adminAllow {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"statusCode": 401,
					"result":     map[string]any{"isError": true, "message": "invalid credentials"},
				})
				return
			}
			f.tokens["tok-admin"] = "agent-admin"
			_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{
				"id":       "agent-admin",
				"jwtToken": "tok-admin",
				"providerWallets": map[string]any{
					"SolanaOASIS": map[string]any{
						"$values": []map[string]any{{"walletAddress": "So1AdminWallet"}},
					},
				},
			}))
			return
		}

		id, ok := f.agents[req.Username]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"statusCode": 401,
				"result":     map[string]any{"isError": true, "message": "invalid credentials"},
			})
			return
		}
		tok := "tok-" + id
		f.tokens[tok] = id
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{"id": id, "jwtToken": tok}))
	})

	mux.HandleFunc("/api/wallet/avatar/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/wallet/avatar/"), "/")
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{"walletAddress": "So1-" + parts[0]}))
	})

	mux.HandleFunc("/api/a2a/agent/capabilities", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := f.agentForToken(r)
		var ad struct {
			Services []string `json:"services"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ad)
		for _, svc := range ad.Services {
			f.services[svc] = append(f.services[svc], id)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	mux.HandleFunc("/api/a2a/agent/register-service", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	mux.HandleFunc("/api/a2a/agents/by-service/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		svc := strings.TrimPrefix(r.URL.Path, "/api/a2a/agents/by-service/")
		var out []map[string]any
		for _, id := range f.services[svc] {
			out = append(out, map[string]any{
				"agentId":      id,
				"capabilities": map[string]any{"services": []string{svc}},
			})
		}
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{"$values": out}))
	})

	mux.HandleFunc("/api/a2a/jsonrpc", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		sender := f.agentForToken(r)
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if to, ok := req.Params["to_agent_id"].(string); ok && to != "" {
			f.inbox[to] = append(f.inbox[to], map[string]any{
				"messageType": req.Method,
				"content":     req.Params,
				"sender":      sender,
			})
		}
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{
			"message_id": fmt.Sprintf("msg-%d", len(f.inbox)),
		}))
	})

	mux.HandleFunc("/api/a2a/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := f.agentForToken(r)
		msgs := f.inbox[id]
		if msgs == nil {
			msgs = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{"$values": msgs}))
	})

	mux.HandleFunc("/api/solana/send", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.transfers = append(f.transfers, req)
		f.nextTx++
		_ = json.NewEncoder(w).Encode(f.wrap(map[string]any{
			"transactionHash": fmt.Sprintf("5xTx%d", f.nextTx),
		}))
	})

	return mux
}

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Workflow.DiscoveryRetryDelay = time.Millisecond
	cfg.Workflow.MessagePollDelay = time.Millisecond
	cfg.Workflow.SettleDelay = time.Millisecond
	return cfg
}

func newScenarioClient(t *testing.T, cfg *config.Config) *transport.Client {
	t.Helper()
	tc := transport.DefaultClientConfig()
	tc.BaseURL = cfg.API.BaseURL
	tc.Timeout = cfg.API.RequestTimeout
	return transport.NewClient(tc, zaptest.NewLogger(t), nil)
}

func TestPaymentScenario_NoFunding(t *testing.T) {
	platform := newFakePlatform()
	srv := httptest.NewServer(platform.handler())
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	scenario := NewPaymentScenario(cfg, newScenarioClient(t, cfg), zaptest.NewLogger(t), nil)

	summary, err := scenario.Run(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Succeeded())

	assert.Equal(t, OutcomeOK, summary.Outcome("provision_agents"))
	assert.Equal(t, OutcomeOK, summary.Outcome("discover_provider"))
	assert.Equal(t, OutcomeSkipped, summary.Outcome("fund_wallets"))
	assert.Equal(t, OutcomeOK, summary.Outcome("settle_payment"))
	assert.Equal(t, OutcomeSkipped, summary.Outcome("openserv_bridge"))

	// Without funding the run is annotated, not failed.
	require.NotEmpty(t, summary.Notes)
	assert.Contains(t, summary.Notes[0], "funding was skipped")

	assert.NotEmpty(t, summary.Facts["provider_agent_id"])
	assert.NotEmpty(t, summary.Facts["consumer_agent_id"])
	assert.NotEmpty(t, summary.Facts["transaction_hash"])
	assert.NotEqual(t, summary.Facts["provider_agent_id"], summary.Facts["consumer_agent_id"])

	// Exactly one transfer: the agent-to-agent payment, never retried.
	assert.Len(t, platform.transfers, 1)
}

func TestPaymentScenario_WithFunding(t *testing.T) {
	platform := newFakePlatform()
	platform.adminAllow = true
	srv := httptest.NewServer(platform.handler())
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "adminpw"
	cfg.Admin.WalletAddress = "So1AdminWallet"

	scenario := NewPaymentScenario(cfg, newScenarioClient(t, cfg), zaptest.NewLogger(t), nil)

	summary, err := scenario.Run(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Succeeded())
	assert.Equal(t, OutcomeOK, summary.Outcome("fund_wallets"))
	assert.Empty(t, summary.Notes)

	// Two funding transfers plus the settlement.
	require.Len(t, platform.transfers, 3)
	last := platform.transfers[2]
	from := last["fromAccount"].(map[string]any)["publicKey"]
	to := last["toAccount"].(map[string]any)["publicKey"]
	assert.Equal(t, "So1-"+summary.Facts["consumer_agent_id"], from)
	assert.Equal(t, "So1-"+summary.Facts["provider_agent_id"], to)
	assert.EqualValues(t, 10_000_000, last["amount"])
}

func TestPaymentScenario_AdminAuthFailureDegrades(t *testing.T) {
	platform := newFakePlatform() // adminAllow stays false
	srv := httptest.NewServer(platform.handler())
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "wrong"

	scenario := NewPaymentScenario(cfg, newScenarioClient(t, cfg), zaptest.NewLogger(t), nil)

	summary, err := scenario.Run(context.Background())
	require.NoError(t, err, "funding is optional; admin auth failure must not abort the run")
	assert.Equal(t, OutcomeDegraded, summary.Outcome("fund_wallets"))
	require.NotEmpty(t, summary.Notes)
	assert.Contains(t, summary.Notes[0], "admin authentication failed")
}

func TestDiscoveryScenario(t *testing.T) {
	platform := newFakePlatform()
	mux := platform.handler().(*http.ServeMux)

	// Directory endpoints only the discovery scenario exercises.
	mux.HandleFunc("/api/a2a/agents", func(w http.ResponseWriter, _ *http.Request) {
		platform.mu.Lock()
		defer platform.mu.Unlock()
		var out []map[string]any
		for _, id := range platform.agents {
			out = append(out, map[string]any{"agentId": id})
		}
		_ = json.NewEncoder(w).Encode(platform.wrap(map[string]any{"$values": out}))
	})
	mux.HandleFunc("/api/a2a/agents/discover-serv", func(w http.ResponseWriter, r *http.Request) {
		platform.mu.Lock()
		defer platform.mu.Unlock()
		var out []map[string]any
		for _, id := range platform.services[r.URL.Query().Get("service")] {
			out = append(out, map[string]any{"agentId": id})
		}
		_ = json.NewEncoder(w).Encode(platform.wrap(map[string]any{"$values": out}))
	})
	mux.HandleFunc("/api/a2a/agent-card", func(w http.ResponseWriter, r *http.Request) {
		platform.mu.Lock()
		defer platform.mu.Unlock()
		id := platform.agentForToken(r)
		_ = json.NewEncoder(w).Encode(platform.wrap(map[string]any{
			"agentId":      id,
			"capabilities": map[string]any{"services": []string{"data-analysis"}},
		}))
	})
	mux.HandleFunc("/api/a2a/agent-card/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/a2a/agent-card/")
		_ = json.NewEncoder(w).Encode(platform.wrap(map[string]any{
			"agentId":      id,
			"capabilities": map[string]any{"services": []string{"data-analysis"}},
		}))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	scenario := NewDiscoveryScenario(cfg, newScenarioClient(t, cfg), zaptest.NewLogger(t), nil)

	summary, err := scenario.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Succeeded())
	assert.Equal(t, OutcomeOK, summary.Outcome("lookup_directory"))
	assert.Equal(t, OutcomeOK, summary.Outcome("fetch_agent_cards"))
	assert.Equal(t, "1", summary.Facts["directory_size"])
	assert.Equal(t, "data-analysis", summary.Facts["services"])
}
