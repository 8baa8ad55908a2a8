package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/escrow"
	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/property"
)

// --- Test helpers ---

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// apiFixture runs the real escrow HTTP handlers behind a stub auth layer
// that takes the bearer token as the user id.
type apiFixture struct {
	svc *escrow.Service
	url string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, escrow.RegisterValidators())

	props := property.NewMemoryLookup(&property.Property{
		ID: "prop_1", Title: "3-bedroom duplex, Lekki",
		Price: decimal.NewFromInt(50_000_000), Status: property.StatusAvailable,
		Owner: property.Owner{ID: "seller_1"},
	})
	svc := escrow.NewService(escrow.NewMemoryStore(), props, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		id := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "token required"})
			return
		}
		role := auth.RoleUser
		if strings.HasPrefix(id, "admin") {
			role = auth.RoleAdmin
		}
		c.Set(auth.ContextKeyUser, auth.User{ID: identity.ID(id), Role: role})
		c.Next()
	})
	escrow.NewHandler(svc).RegisterRoutes(router.Group("/v1"))

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &apiFixture{svc: svc, url: ts.URL}
}

func (f *apiFixture) handlers(token string) *Handlers {
	return NewHandlers(NewClient(Config{APIURL: f.url, Token: token}))
}

func (f *apiFixture) create(t *testing.T) *escrow.Transaction {
	t.Helper()
	tx, err := f.svc.Create(context.Background(), escrow.CreateRequest{
		PropertyID:    "prop_1",
		Amount:        decimal.NewFromInt(1_000_000),
		PaymentMethod: escrow.MethodBankTransfer,
	}, escrow.Actor{ID: "buyer_1", Role: auth.RoleUser})
	require.NoError(t, err)
	return tx
}

// ============================================================
// Client tests
// ============================================================

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"transaction":{"id":"abc"}}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL, Token: "jwt123"})
	tx, err := client.GetTransaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tx.ID)
	assert.Equal(t, "Bearer jwt123", gotAuth)
}

func TestClient_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid_transition",
			"message": "update_status: cannot move from completed to pending",
			"allowed": []string{},
		})
	}))
	defer ts.Close()

	_, err := NewClient(Config{APIURL: ts.URL}).UpdateStatus(context.Background(), "abc", "pending", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
	assert.Contains(t, err.Error(), "cannot move")
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream connect error"))
	}))
	defer ts.Close()

	_, err := NewClient(Config{APIURL: ts.URL}).GetStatistics(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream connect error")
}

func TestClient_ListQueryParams(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"items":[],"page":2,"limit":5,"total":0,"pages":0}`))
	}))
	defer ts.Close()

	_, err := NewClient(Config{APIURL: ts.URL}).ListTransactions(context.Background(),
		ListFilter{Status: "active", Role: "seller", Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "limit=5&page=2&role=seller&status=active", gotQuery)
}

func TestClient_ConnectionRefused(t *testing.T) {
	_, err := NewClient(Config{APIURL: "http://127.0.0.1:1"}).GetTransaction(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

// ============================================================
// Tool handlers against the real escrow API
// ============================================================

func TestHandleGetTransaction(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.create(t)

	result, err := f.handlers("seller_1").HandleGetTransaction(context.Background(),
		makeRequest(map[string]any{"transaction_id": tx.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, tx.Reference)
	assert.Contains(t, text, "3-bedroom duplex, Lekki")
	assert.Contains(t, text, "1000000.00 NGN via bank_transfer")
	assert.Contains(t, text, "Status: initiated (next: pending, cancelled)")
}

func TestHandleGetTransaction_Stranger(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.create(t)

	result, err := f.handlers("stranger_1").HandleGetTransaction(context.Background(),
		makeRequest(map[string]any{"transaction_id": tx.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "403")
}

func TestHandleGetTransaction_MissingID(t *testing.T) {
	h := NewHandlers(NewClient(Config{}))
	result, err := h.HandleGetTransaction(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "transaction_id is required")
}

func TestHandleUpdateStatus(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.create(t)

	result, err := f.handlers("buyer_1").HandleUpdateStatus(context.Background(),
		makeRequest(map[string]any{"transaction_id": tx.ID, "status": "pending", "notes": "transfer sent"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Contains(t, resultText(t, result), "is now pending")

	result, err = f.handlers("buyer_1").HandleUpdateStatus(context.Background(),
		makeRequest(map[string]any{"transaction_id": tx.ID, "status": "completed"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "409")
	assert.Contains(t, text, "Allowed next statuses: active, cancelled")
}

func TestHandleUpdateStatus_MissingStatus(t *testing.T) {
	h := NewHandlers(NewClient(Config{}))
	result, err := h.HandleUpdateStatus(context.Background(), makeRequest(map[string]any{"transaction_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "status is required")
}

func TestHandleFileDisputeAndTimeline(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.create(t)
	ctx := context.Background()

	_, err := f.handlers("buyer_1").HandleUpdateStatus(ctx,
		makeRequest(map[string]any{"transaction_id": tx.ID, "status": "pending"}))
	require.NoError(t, err)

	result, err := f.handlers("buyer_1").HandleFileDispute(ctx,
		makeRequest(map[string]any{"transaction_id": tx.ID, "reason": "Survey plan mismatch"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Contains(t, resultText(t, result), "Status: disputed")

	result, err = f.handlers("seller_1").HandleFileDispute(ctx,
		makeRequest(map[string]any{"transaction_id": tx.ID, "reason": "again"}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "a dispute is filed once")

	result, err = f.handlers("seller_1").HandleGetTimeline(ctx,
		makeRequest(map[string]any{"transaction_id": tx.ID}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Status path: initiated -> pending -> disputed")
	assert.Contains(t, text, "dispute_filed")
	assert.Contains(t, text, "(by buyer_1)")
}

func TestHandleFileDispute_MissingReason(t *testing.T) {
	h := NewHandlers(NewClient(Config{}))
	result, err := h.HandleFileDispute(context.Background(), makeRequest(map[string]any{"transaction_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "reason is required")
}

func TestHandleListTransactions(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.create(t)
	ctx := context.Background()

	result, err := f.handlers("seller_1").HandleListTransactions(ctx, makeRequest(map[string]any{"role": "seller"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Showing 1 of 1")
	assert.Contains(t, text, tx.Reference)

	result, err = f.handlers("seller_1").HandleListTransactions(ctx, makeRequest(map[string]any{"role": "buyer"}))
	require.NoError(t, err)
	assert.Equal(t, "No transactions found.", resultText(t, result))
}

func TestHandleGetStatistics(t *testing.T) {
	f := newAPIFixture(t)
	f.create(t)
	ctx := context.Background()

	result, err := f.handlers("admin_1").HandleGetStatistics(ctx, makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	text := resultText(t, result)
	assert.Contains(t, text, "Total transactions: 1")
	assert.Contains(t, text, "initiated  1")

	result, err = f.handlers("buyer_1").HandleGetStatistics(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError, "statistics are admin only")
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080", Token: "t"}, "test")
	require.NotNil(t, s)
}
