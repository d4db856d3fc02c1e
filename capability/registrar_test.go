package capability

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

func newTestRegistrar(t *testing.T, handler http.Handler) *Registrar {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := transport.DefaultClientConfig()
	cfg.BaseURL = srv.URL
	client := transport.NewClient(cfg, zaptest.NewLogger(t), nil)
	return NewRegistrar(client, "tok", zaptest.NewLogger(t))
}

func validAd() Advertisement {
	return Advertisement{
		Services:           []string{"data-analysis", "report-generation"},
		Skills:             []string{"statistics"},
		Pricing:            map[string]float64{"data-analysis": 0.01},
		Status:             StatusAvailable,
		MaxConcurrentTasks: 5,
		Description:        "Analysis agent",
	}
}

func TestAdvertisementValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Advertisement)
		wantErr string
	}{
		{"valid", func(*Advertisement) {}, ""},
		{"no services", func(a *Advertisement) { a.Services = nil }, "no services"},
		{"empty service name", func(a *Advertisement) { a.Services = []string{""} }, "empty service name"},
		{"bad status", func(a *Advertisement) { a.Status = "sleeping" }, "unknown status"},
		{"zero concurrency", func(a *Advertisement) { a.MaxConcurrentTasks = 0 }, "must be positive"},
		{"unoffered priced service", func(a *Advertisement) { a.Pricing = map[string]float64{"ghost": 1} }, "unoffered service"},
		{"negative price", func(a *Advertisement) { a.Pricing = map[string]float64{"data-analysis": -1} }, "negative price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := validAd()
			tt.mutate(&ad)
			err := ad.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidAdvertisement)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPublish(t *testing.T) {
	var got Advertisement
	r := newTestRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/api/a2a/agent/capabilities", req.URL.Path)
		require.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))

	require.NoError(t, r.Publish(context.Background(), validAd()))
	assert.Equal(t, validAd().Services, got.Services)
	assert.Equal(t, StatusAvailable, got.Status)
}

func TestPublish_InvalidLocally(t *testing.T) {
	r := newTestRegistrar(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("invalid advertisement must not reach the wire")
	}))

	ad := validAd()
	ad.Services = nil
	assert.ErrorIs(t, r.Publish(context.Background(), ad), ErrInvalidAdvertisement)
}

func TestPublish_RemoteRejection(t *testing.T) {
	r := newTestRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "unknown agent"})
	}))

	err := r.Publish(context.Background(), validAd())
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorContains(t, err, "unknown agent")
}

func TestPublish_EnvelopeError(t *testing.T) {
	r := newTestRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 401,
			"result":     map[string]any{"isError": true, "message": "token expired"},
		})
	}))

	err := r.Publish(context.Background(), validAd())
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorContains(t, err, "token expired")
}

func TestRegisterService(t *testing.T) {
	calls := 0
	r := newTestRegistrar(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/api/a2a/agent/register-service", req.URL.Path)
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))

	// Registering twice is allowed, the second call is a platform no-op.
	require.NoError(t, r.RegisterService(context.Background(), "data-analysis", "desc", 0.01))
	require.NoError(t, r.RegisterService(context.Background(), "data-analysis", "desc", 0.01))
	assert.Equal(t, 2, calls)
}

func TestRegisterService_EmptyName(t *testing.T) {
	r := newTestRegistrar(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	}))
	assert.ErrorIs(t, r.RegisterService(context.Background(), "", "", 0), ErrInvalidAdvertisement)
}
