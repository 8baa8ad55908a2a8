package escrow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/notify"
	"github.com/mbd888/homeescrow/internal/property"
)

var (
	buyer    = Actor{ID: "buyer_1", Email: "buyer@example.com", Role: auth.RoleUser}
	seller   = Actor{ID: "seller_1", Email: "seller@example.com", Role: auth.RoleUser}
	admin    = Actor{ID: "admin_1", Role: auth.RoleAdmin}
	stranger = Actor{ID: "stranger_1", Role: auth.RoleUser}
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) CreateNotification(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func (r *recordingNotifier) recipients(typ notify.Type) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.Type == typ {
			out = append(out, n.Recipient)
		}
	}
	return out
}

type staticAdmins []identity.ID

func (s staticAdmins) AdminIDs(ctx context.Context) ([]identity.ID, error) { return s, nil }

type fixture struct {
	store      *MemoryStore
	properties *property.MemoryLookup
	notifier   *recordingNotifier
	svc        *Service
	clock      *testClock
}

type testClock struct {
	ticks atomic.Int64
	base  time.Time
}

// now advances one second per call so timeline timestamps are ordered.
func (c *testClock) now() time.Time {
	return c.base.Add(time.Duration(c.ticks.Add(1)) * time.Second)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMemoryStore(),
		notifier: &recordingNotifier{},
		clock:    &testClock{base: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		properties: property.NewMemoryLookup(
			&property.Property{
				ID: "prop_1", Title: "3-bedroom duplex, Lekki",
				Price: decimal.NewFromInt(50_000_000), Status: property.StatusAvailable,
				Owner: property.Owner{ID: "seller_1", Email: "seller@example.com"},
			},
			&property.Property{
				ID: "prop_2", Title: "Studio, Yaba",
				Price: decimal.NewFromInt(8_000_000), Status: property.StatusAvailable,
				Owner: property.Owner{ID: "seller_1"},
			},
			&property.Property{
				ID: "prop_sold", Title: "Sold bungalow",
				Price: decimal.NewFromInt(1), Status: "sold",
				Owner: property.Owner{ID: "seller_1"},
			},
			&property.Property{
				ID: "prop_email", Title: "Owner known by email",
				Price: decimal.NewFromInt(1), Status: property.StatusAvailable,
				Owner: property.Owner{Email: "Owner@Example.com"},
			},
		),
	}
	f.svc = NewService(f.store, f.properties, nil).
		WithNotifier(f.notifier).
		WithAdminDirectory(staticAdmins{"admin_1", "admin_2"}).
		WithClock(f.clock.now)
	return f
}

func createReq(propertyID string) CreateRequest {
	return CreateRequest{
		PropertyID:    propertyID,
		Amount:        decimal.NewFromInt(1_000_000),
		PaymentMethod: MethodCard,
	}
}

func (f *fixture) create(t *testing.T, propertyID string) *Transaction {
	t.Helper()
	tx, err := f.svc.Create(context.Background(), createReq(propertyID), buyer)
	require.NoError(t, err)
	return tx
}

var seedSeq atomic.Int64

// seedPaths lists the statuses a seeded transaction passed through after
// creation, so its timeline replays to the seeded status.
var seedPaths = map[Status][]Status{
	StatusInitiated: nil,
	StatusPending:   {StatusPending},
	StatusActive:    {StatusPending, StatusActive},
	StatusCompleted: {StatusPending, StatusActive, StatusCompleted},
	StatusCancelled: {StatusCancelled},
	StatusDisputed:  {StatusPending, StatusActive, StatusDisputed},
	StatusRefunded:  {StatusPending, StatusActive, StatusDisputed, StatusRefunded},
}

// seed stores a transaction directly in the given status, with a timeline
// that records the path to it.
func (f *fixture) seed(t *testing.T, status Status) *Transaction {
	t.Helper()
	n := seedSeq.Add(1)
	now := f.clock.now()
	tx := &Transaction{
		ID:            fmt.Sprintf("00000000-0000-4000-8000-%012d", n),
		Reference:     fmt.Sprintf("ESC-SEED%08d", n),
		PropertyID:    fmt.Sprintf("seed_prop_%d", n),
		BuyerID:       buyer.ID,
		SellerID:      seller.ID,
		Amount:        decimal.NewFromInt(500),
		Currency:      DefaultCurrency,
		PaymentMethod: MethodBankTransfer,
		Fees:          CalculateFees(decimal.NewFromInt(500), MethodBankTransfer),
		Status:        status,
		Documents:     []Document{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx.Timeline = []TimelineEvent{createdEvent(tx, now)}
	path, ok := seedPaths[status]
	require.Truef(t, ok, "no seed path for %s", status)
	from := StatusInitiated
	for _, to := range path {
		tx.Timeline = append(tx.Timeline, statusChangedEvent(seller.ID, from, to, "", now))
		from = to
	}
	require.NoError(t, f.store.Create(context.Background(), tx))
	return tx
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
