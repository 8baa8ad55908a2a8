package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/config"
	"github.com/mbd888/homeescrow/internal/property"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		LogFormat:       "json",
		JWTSecret:       "test-secret-test-secret-test-secret",
		JWTIssuer:       config.DefaultJWTIssuer,
		AdminUserIDs:    []string{"admin_1"},
		DefaultCurrency: "NGN",
		StoreTimeout:    time.Second,
		UpstreamTimeout: time.Second,
		NotifyWorkers:   1,
		NotifyQueueSize: 16,
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	props := property.NewMemoryLookup(&property.Property{
		ID: "prop_1", Title: "4-bedroom terrace, Ikeja",
		Price: decimal.NewFromInt(75_000_000), Status: property.StatusAvailable,
		Owner: property.Owner{ID: "seller_1"},
	})
	s, err := New(testConfig(), WithPropertyLookup(props), WithDrainDelay(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func do(t *testing.T, s *Server, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready before Run")

	s.ready.Store(true)
	w = do(t, s, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"notifications"`)
	assert.Contains(t, w.Body.String(), `"property"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "homeescrow_")
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(t, s, http.MethodGet, "/health/live", "", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 32)
}

func TestV1RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/escrow", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/v1/escrow", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEscrowFlowDeliversNotifications(t *testing.T) {
	s := newTestServer(t)
	s.dispatcher.Start()

	buyerTok := issue(t, s, auth.User{ID: "buyer_1", Email: "buyer@example.com", Role: auth.RoleUser})
	sellerTok := issue(t, s, auth.User{ID: "seller_1", Role: auth.RoleUser})
	adminTok := issue(t, s, auth.User{ID: "admin_1", Role: auth.RoleUser})

	w := do(t, s, http.MethodPost, "/v1/escrow", buyerTok,
		`{"propertyId":"prop_1","amount":"75000000","paymentMethod":"bank_transfer"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Transaction struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			SellerID string `json:"sellerId"`
		} `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "initiated", created.Transaction.Status)
	assert.Equal(t, "seller_1", created.Transaction.SellerID)

	w = do(t, s, http.MethodPost, "/v1/escrow/"+created.Transaction.ID+"/status", sellerTok, `{"status":"pending"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// admin_1 is promoted by the configured directory
	w = do(t, s, http.MethodGet, "/v1/escrow/stats", adminTok, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodGet, "/v1/escrow/stats", buyerTok, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.Eventually(t, func() bool {
		w := do(t, s, http.MethodGet, "/v1/notifications", sellerTok, "")
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), created.Transaction.ID)
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		w := do(t, s, http.MethodGet, "/v1/notifications", buyerTok, "")
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), created.Transaction.ID)
	}, 2*time.Second, 20*time.Millisecond, "buyer hears about the seller's status change")

	require.NoError(t, s.dispatcher.Stop(context.Background()))
}

func TestShutdownWithoutRun(t *testing.T) {
	s, err := New(testConfig(), WithDrainDelay(0))
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown())
}

func TestMaskDSN(t *testing.T) {
	masked := maskDSN("postgres://app:secret@db:5432/escrow")
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, "app:")
	assert.Equal(t, "***", maskDSN("://bad"))
}

func issue(t *testing.T, s *Server, u auth.User) string {
	t.Helper()
	tok, err := s.Verifier().Issue(u, time.Hour)
	require.NoError(t, err)
	return tok
}
