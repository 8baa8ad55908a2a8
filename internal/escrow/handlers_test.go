package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/documents"
	"github.com/mbd888/homeescrow/internal/identity"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakePresigner struct{}

func (fakePresigner) PresignUpload(ctx context.Context, transactionID, fileName, contentType string) (*documents.Upload, error) {
	if fileName == ".." {
		return nil, documents.ErrInvalidFileName
	}
	return &documents.Upload{
		UploadURL: "https://bucket.s3.amazonaws.com/escrow/" + transactionID + "/" + fileName + "?X-Amz-Signature=x",
		FileURL:   "https://bucket.s3.amazonaws.com/escrow/" + transactionID + "/" + fileName,
		Key:       "escrow/" + transactionID + "/" + fileName,
		ExpiresAt: time.Now().Add(documents.DefaultExpiry),
	}, nil
}

// newTestRouter authenticates requests from the X-User and X-Role headers.
func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User"); id != "" {
			c.Set(auth.ContextKeyUser, auth.User{ID: identity.ID(id), Role: auth.Role(c.GetHeader("X-Role"))})
		}
		c.Next()
	})
	h.RegisterRoutes(r.Group("/v1", auth.RequireAuth()))
	return r
}

func do(t *testing.T, r http.Handler, method, path string, as Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if !as.ID.IsZero() {
		req.Header.Set("X-User", as.ID.String())
		req.Header.Set("X-Role", string(as.Role))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type txResponse struct {
	Transaction Transaction `json:"transaction"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlers_Lifecycle(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(NewHandler(f.svc))

	w := do(t, r, http.MethodPost, "/v1/escrow", buyer, gin.H{
		"propertyId":    "prop_1",
		"amount":        "1000000",
		"paymentMethod": "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[txResponse](t, w).Transaction
	assert.Equal(t, StatusInitiated, created.Status)
	requireDecimal(t, "25000", created.Fees.TotalFees)
	base := "/v1/escrow/" + created.ID

	w = do(t, r, http.MethodPost, base+"/status", buyer, gin.H{"status": "pending", "notes": "paid"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, base+"/status", buyer, gin.H{"status": "completed"})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "invalid_transition", body["error"])
	assert.Equal(t, "pending", body["currentStatus"])
	assert.ElementsMatch(t, []any{"active", "cancelled"}, body["allowed"])

	w = do(t, r, http.MethodPost, base+"/status", seller, gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, base+"/dispute", buyer, gin.H{"reason": "Fence missing"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, base+"/dispute", seller, gin.H{"reason": "Counter-claim"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "dispute_already_filed", decode[map[string]any](t, w)["error"])

	w = do(t, r, http.MethodPost, base+"/resolve", seller, gin.H{"resolution": "seller_favor"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, base+"/resolve", admin, gin.H{"resolution": "buyer_favor"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusCompleted, decode[txResponse](t, w).Transaction.Status)

	w = do(t, r, http.MethodGet, base+"/timeline", seller, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tl := decode[struct {
		Timeline []TimelineEvent `json:"timeline"`
		Statuses []Status        `json:"statuses"`
	}](t, w)
	assert.Len(t, tl.Timeline, 5)
	assert.Equal(t, []Status{StatusInitiated, StatusPending, StatusActive, StatusDisputed, StatusCompleted}, tl.Statuses)
}

func TestHandlers_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(NewHandler(f.svc))
	tx := f.seed(t, StatusActive)
	base := "/v1/escrow/" + tx.ID

	tests := []struct {
		name   string
		method string
		path   string
		as     Actor
		body   any
		want   int
		code   string
	}{
		{"anonymous", http.MethodGet, base, Actor{}, nil, http.StatusUnauthorized, ""},
		{"stranger reads", http.MethodGet, base, stranger, nil, http.StatusForbidden, "not_authorized"},
		{"participant reads", http.MethodGet, base, buyer, nil, http.StatusOK, ""},
		{"admin reads", http.MethodGet, base, admin, nil, http.StatusOK, ""},
		{"malformed id", http.MethodGet, "/v1/escrow/not-a-uuid", buyer, nil, http.StatusBadRequest, "validation_error"},
		{"unknown id", http.MethodGet, "/v1/escrow/6f1c2a8e-6c1e-4a55-9d7e-2b1f0c3a4d5e", buyer, nil, http.StatusNotFound, "not_found"},
		{"bad status tag", http.MethodPost, base + "/status", seller, gin.H{"status": "shipped"}, http.StatusBadRequest, "validation_error"},
		{"bad method tag", http.MethodPost, "/v1/escrow", buyer, gin.H{"propertyId": "prop_1", "amount": "10", "paymentMethod": "cash"}, http.StatusBadRequest, "validation_error"},
		{"zero amount", http.MethodPost, "/v1/escrow", buyer, gin.H{"propertyId": "prop_1", "amount": "0", "paymentMethod": "card"}, http.StatusBadRequest, "validation_error"},
		{"self dealing", http.MethodPost, "/v1/escrow", seller, gin.H{"propertyId": "prop_1", "amount": "10", "paymentMethod": "card"}, http.StatusBadRequest, "self_dealing"},
		{"unknown property", http.MethodPost, "/v1/escrow", buyer, gin.H{"propertyId": "nope", "amount": "10", "paymentMethod": "card"}, http.StatusNotFound, "not_found"},
		{"bad resolution tag", http.MethodPost, base + "/resolve", admin, gin.H{"resolution": "split"}, http.StatusBadRequest, "validation_error"},
		{"document needs url", http.MethodPost, base + "/documents", buyer, gin.H{"type": "deed", "name": "deed.pdf", "url": "not a url"}, http.StatusBadRequest, "validation_error"},
		{"stats need admin", http.MethodGet, "/v1/escrow/stats", buyer, nil, http.StatusForbidden, ""},
		{"stats", http.MethodGet, "/v1/escrow/stats", admin, nil, http.StatusOK, ""},
		{"volumes bad date", http.MethodGet, "/v1/escrow/volumes?from=03/01/2026", admin, nil, http.StatusBadRequest, "validation_error"},
		{"volumes reversed", http.MethodGet, "/v1/escrow/volumes?from=2026-03-10&to=2026-03-01", admin, nil, http.StatusBadRequest, "validation_error"},
		{"list bad role", http.MethodGet, "/v1/escrow?role=agent", buyer, nil, http.StatusBadRequest, "validation_error"},
		{"list bad status", http.MethodGet, "/v1/escrow?status=gone", buyer, nil, http.StatusBadRequest, "validation_error"},
		{"upload disabled", http.MethodPost, base + "/documents/upload-url", buyer, gin.H{"fileName": "deed.pdf"}, http.StatusNotImplemented, "documents_disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.as, tt.body)
			require.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[map[string]any](t, w)["error"])
			}
		})
	}
}

func TestHandlers_DocumentsAndUploadURL(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(NewHandler(f.svc).WithPresigner(fakePresigner{}))
	tx := f.seed(t, StatusActive)
	base := "/v1/escrow/" + tx.ID

	w := do(t, r, http.MethodPost, base+"/documents/upload-url", seller, gin.H{"fileName": "deed.pdf", "contentType": "application/pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	upload := decode[struct {
		Upload documents.Upload `json:"upload"`
	}](t, w).Upload
	assert.Contains(t, upload.Key, tx.ID)

	w = do(t, r, http.MethodPost, base+"/documents/upload-url", seller, gin.H{"fileName": ".."})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, base+"/documents/upload-url", stranger, gin.H{"fileName": "deed.pdf"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, base+"/documents", seller, gin.H{"type": "deed", "name": "deed.pdf", "url": upload.FileURL})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decode[txResponse](t, w).Transaction
	require.Len(t, got.Documents, 1)
	assert.Equal(t, upload.FileURL, got.Documents[0].URL)
}

func TestHandlers_ListAndVolumes(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(NewHandler(f.svc))
	f.create(t, "prop_1")
	f.create(t, "prop_2")

	w := do(t, r, http.MethodGet, "/v1/escrow?limit=1&role=buyer", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[map[string]any](t, w)
	assert.EqualValues(t, 2, page["total"])
	assert.Len(t, page["items"], 1)

	w = do(t, r, http.MethodGet, "/v1/escrow", stranger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["total"])

	w = do(t, r, http.MethodGet, "/v1/escrow/volumes?from=2026-03-01&to=2026-03-31", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	vol := decode[struct {
		Volumes []DailyVolume `json:"volumes"`
	}](t, w)
	require.Len(t, vol.Volumes, 1)
	assert.Equal(t, "2026-03-10", vol.Volumes[0].Date)
}

func TestHandlers_UpstreamUnavailableSetsRetryAfter(t *testing.T) {
	svc := NewService(slowStore{NewMemoryStore()}, nil, nil).WithStoreTimeout(5 * time.Millisecond)
	r := newTestRouter(NewHandler(svc))

	w := do(t, r, http.MethodGet, "/v1/escrow/6f1c2a8e-6c1e-4a55-9d7e-2b1f0c3a4d5e", buyer, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	body := decode[map[string]any](t, w)
	assert.Equal(t, "upstream_unavailable", body["error"])
	assert.Equal(t, true, body["retryable"])
}
