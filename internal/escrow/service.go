package escrow

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/idgen"
	"github.com/mbd888/homeescrow/internal/logging"
	"github.com/mbd888/homeescrow/internal/metrics"
	"github.com/mbd888/homeescrow/internal/notify"
	"github.com/mbd888/homeescrow/internal/pagination"
	"github.com/mbd888/homeescrow/internal/payments"
	"github.com/mbd888/homeescrow/internal/property"
	"github.com/mbd888/homeescrow/internal/syncutil"
	"github.com/mbd888/homeescrow/internal/traces"
)

const (
	DefaultStoreTimeout    = 5 * time.Second
	DefaultUpstreamTimeout = 3 * time.Second
	DefaultCurrency        = "NGN"

	// amountPlaces matches the NUMERIC(20,2) amount column.
	amountPlaces = 2
)

var (
	currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)
	maxAmount    = decimal.New(1, 18)
)

// Notifier accepts notifications after a commit. Implementations must not
// block on delivery.
type Notifier interface {
	CreateNotification(ctx context.Context, n notify.Notification) error
}

// AdminDirectory lists platform administrators.
type AdminDirectory interface {
	AdminIDs(ctx context.Context) ([]identity.ID, error)
}

// PaymentConfirmer reports whether the gateway settled a payment reference.
type PaymentConfirmer interface {
	Confirmed(ctx context.Context, reference string) (bool, error)
}

// CreateRequest contains the parameters for opening an escrow.
type CreateRequest struct {
	PropertyID         string          `json:"propertyId" binding:"required,max=128"`
	Amount             decimal.Decimal `json:"amount"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod" binding:"required,payment_method"`
	Currency           string          `json:"currency" binding:"omitempty,len=3,alpha"`
	PaymentReference   string          `json:"paymentReference" binding:"max=255"`
	ExpectedCompletion *time.Time      `json:"expectedCompletion"`
}

// DisputeRequest contains the parameters for filing a dispute.
type DisputeRequest struct {
	Reason      string   `json:"reason" binding:"required,max=500"`
	Description string   `json:"description" binding:"max=5000"`
	Evidence    []string `json:"evidence" binding:"max=20,dive,max=2048"`
}

// ResolveRequest contains an administrator's ruling.
type ResolveRequest struct {
	Resolution Resolution `json:"resolution" binding:"required,resolution"`
	AdminNotes string     `json:"adminNotes" binding:"max=5000"`
}

// DocumentRequest describes an uploaded document.
type DocumentRequest struct {
	Type string `json:"type" binding:"required,max=64"`
	URL  string `json:"url" binding:"required,url,max=2048"`
	Name string `json:"name" binding:"required,max=255"`
}

// Service implements the escrow state machine.
type Service struct {
	store           Store
	properties      property.Lookup
	notifier        Notifier
	admins          AdminDirectory
	confirmer       PaymentConfirmer
	locks           *syncutil.ContextShardedMutex
	logger          *slog.Logger
	storeTimeout    time.Duration
	upstreamTimeout time.Duration
	currency        string
	now             func() time.Time
}

// NewService creates a new escrow service.
func NewService(store Store, properties property.Lookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:           store,
		properties:      properties,
		locks:           syncutil.NewContextShardedMutex(syncutil.DefaultShards),
		logger:          logger,
		storeTimeout:    DefaultStoreTimeout,
		upstreamTimeout: DefaultUpstreamTimeout,
		currency:        DefaultCurrency,
		now:             time.Now,
	}
}

// WithNotifier sets where post-commit notifications go.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithAdminDirectory sets who receives dispute notifications.
func (s *Service) WithAdminDirectory(d AdminDirectory) *Service {
	s.admins = d
	return s
}

// WithPaymentConfirmer gates pending -> active on gateway settlement.
func (s *Service) WithPaymentConfirmer(c PaymentConfirmer) *Service {
	s.confirmer = c
	return s
}

// WithStoreTimeout bounds every store call.
func (s *Service) WithStoreTimeout(d time.Duration) *Service {
	if d > 0 {
		s.storeTimeout = d
	}
	return s
}

// WithUpstreamTimeout bounds each payment gateway call.
func (s *Service) WithUpstreamTimeout(d time.Duration) *Service {
	if d > 0 {
		s.upstreamTimeout = d
	}
	return s
}

// WithDefaultCurrency sets the currency used when a request names none.
func (s *Service) WithDefaultCurrency(code string) *Service {
	if code != "" {
		s.currency = strings.ToUpper(code)
	}
	return s
}

// WithClock replaces time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens an escrow for buyer on an available property.
func (s *Service) Create(ctx context.Context, req CreateRequest, buyer Actor) (tx *Transaction, err error) {
	ctx, finish := s.begin(ctx, "create", traces.PropertyID(req.PropertyID), traces.Actor(buyer.ID.String()), traces.Amount(req.Amount.String()))
	defer func() { finish(err) }()

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	switch {
	case !req.Amount.IsPositive(), !req.Amount.Equal(req.Amount.Truncate(amountPlaces)), req.Amount.GreaterThanOrEqual(maxAmount):
		return nil, ErrInvalidAmount
	case !req.PaymentMethod.Valid():
		return nil, ErrInvalidPaymentMethod
	case !currencyCode.MatchString(currency):
		return nil, ErrInvalidCurrency
	}

	buyerID, ok := buyer.canonical()
	if !ok {
		return nil, authError("create", RoleBuyer)
	}

	prop, err := s.properties.GetPropertyByID(ctx, req.PropertyID)
	switch {
	case errors.Is(err, property.ErrNotFound):
		return nil, ErrPropertyNotFound
	case err != nil:
		return nil, upstream("property lookup", err)
	}
	if !prop.IsAvailable() {
		return nil, ErrPropertyUnavailable
	}
	sellerID, ok := sellerOf(prop)
	if !ok {
		return nil, ErrPropertyUnavailable
	}
	if sellerID == buyerID || buyer.matches(sellerID) || ownsByEmail(buyer, prop) {
		return nil, ErrSelfDealing
	}

	now := s.now().UTC()
	tx = &Transaction{
		ID:                 idgen.New(),
		Reference:          idgen.Reference(),
		PaymentReference:   strings.TrimSpace(req.PaymentReference),
		PropertyID:         prop.ID,
		Property:           *prop,
		BuyerID:            buyerID,
		SellerID:           sellerID,
		Amount:             req.Amount,
		Currency:           currency,
		PaymentMethod:      req.PaymentMethod,
		Fees:               CalculateFees(req.Amount, req.PaymentMethod),
		Status:             StatusInitiated,
		Documents:          []Document{},
		ExpectedCompletion: req.ExpectedCompletion,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx.Timeline = []TimelineEvent{createdEvent(tx, now)}

	if _, err := callStore(ctx, s, "create transaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Create(ctx, tx)
	}); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("escrow created",
		"transaction_id", tx.ID, "reference", tx.Reference,
		"property_id", tx.PropertyID, "amount", tx.Amount.String(), "currency", tx.Currency)

	s.emit(ctx, tx, buyerID, notify.TypeTransactionCreated,
		"New escrow transaction",
		fmt.Sprintf("An escrow of %s %s was opened for %s.", tx.Amount.StringFixed(2), tx.Currency, propertyName(tx)),
		[]identity.ID{sellerID})
	return tx, nil
}

// UpdateStatus moves a transaction along the status table.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor Actor, notes string) (tx *Transaction, err error) {
	ctx, finish := s.begin(ctx, "update_status", traces.TransactionID(id), traces.Status(string(to)), traces.Actor(actor.ID.String()))
	defer func() { finish(err) }()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.RoleOf(actor) == RoleNone {
		return nil, authError("update_status", RoleBuyer, RoleSeller, RoleAdmin)
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		return nil, &TransitionError{Op: "update_status", From: current.Status, To: to}
	}
	if !permitted(current, actor, to) {
		return nil, authError("update_status", statusRoles[to]...)
	}
	if to == StatusActive {
		if err := s.confirmPayment(ctx, current); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	patch := Patch{
		Status:    to,
		Event:     statusChangedEvent(actor.performer(), current.Status, to, notes, now),
		UpdatedAt: now,
	}
	if to == StatusCompleted {
		patch.ActualCompletion = &now
	}

	tx, err = s.commit(ctx, current, patch)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, tx, actor.performer(), notify.StatusType(string(to)),
		"Escrow "+string(to),
		fmt.Sprintf("Escrow %s moved from %s to %s.", tx.Reference, current.Status, to),
		tx.Counterparts(actor))
	return tx, nil
}

// FileDispute opens the single dispute a transaction may carry.
func (s *Service) FileDispute(ctx context.Context, id string, req DisputeRequest, actor Actor) (tx *Transaction, err error) {
	ctx, finish := s.begin(ctx, "file_dispute", traces.TransactionID(id), traces.Actor(actor.ID.String()))
	defer func() { finish(err) }()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	role := current.RoleOf(actor)
	if role != RoleBuyer && role != RoleSeller {
		return nil, authError("file_dispute", RoleBuyer, RoleSeller)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrInvalidDispute
	}
	if current.Dispute != nil {
		return nil, ErrDisputeAlreadyFiled
	}
	if !CanFileDispute(current.Status) {
		return nil, &TransitionError{Op: "file_dispute", From: current.Status, To: StatusDisputed}
	}

	now := s.now().UTC()
	filer := actor.performer()
	tx, err = s.commit(ctx, current, Patch{
		Status: StatusDisputed,
		Dispute: &Dispute{
			Reason:      reason,
			Description: strings.TrimSpace(req.Description),
			Evidence:    append([]string(nil), req.Evidence...),
			FiledBy:     filer,
			FiledAt:     now,
		},
		Event:     disputeFiledEvent(filer, current.Status, reason, now),
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	recipients := tx.Counterparts(actor)
	recipients = append(recipients, s.adminIDs(ctx)...)
	s.emit(ctx, tx, filer, notify.TypeDisputeFiled,
		"Dispute filed",
		fmt.Sprintf("A dispute was filed on escrow %s: %s", tx.Reference, reason),
		recipients)
	return tx, nil
}

// ResolveDispute records an administrator's ruling and closes the transaction.
func (s *Service) ResolveDispute(ctx context.Context, id string, req ResolveRequest, actor Actor) (tx *Transaction, err error) {
	ctx, finish := s.begin(ctx, "resolve_dispute", traces.TransactionID(id), traces.Actor(actor.ID.String()))
	defer func() { finish(err) }()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, authError("resolve_dispute", RoleAdmin)
	}
	if current.Status != StatusDisputed {
		return nil, &TransitionError{Op: "resolve_dispute", From: current.Status, To: ResolutionTarget(req.Resolution)}
	}
	if !req.Resolution.Valid() {
		return nil, ErrInvalidResolution
	}
	to := ResolutionTarget(req.Resolution)
	if !resolutionTransitions.allows(current.Status, to) {
		return nil, &TransitionError{Op: "resolve_dispute", From: current.Status, To: to}
	}

	now := s.now().UTC()
	resolver := actor.performer()
	dispute := Dispute{}
	if current.Dispute != nil {
		dispute = *current.Dispute
	}
	dispute.Resolution = req.Resolution
	dispute.AdminNotes = strings.TrimSpace(req.AdminNotes)
	dispute.ResolvedAt = &now
	dispute.ResolvedBy = resolver

	patch := Patch{
		Status:    to,
		Dispute:   &dispute,
		Event:     disputeResolvedEvent(resolver, req.Resolution, to, now),
		UpdatedAt: now,
	}
	if to == StatusCompleted {
		patch.ActualCompletion = &now
	}

	tx, err = s.commit(ctx, current, patch)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, tx, resolver, notify.TypeDisputeResolved,
		"Dispute resolved",
		fmt.Sprintf("The dispute on escrow %s was resolved: %s.", tx.Reference, req.Resolution),
		[]identity.ID{tx.BuyerID, tx.SellerID})
	return tx, nil
}

// AddDocument attaches a document without changing the status.
func (s *Service) AddDocument(ctx context.Context, id string, req DocumentRequest, actor Actor) (tx *Transaction, err error) {
	ctx, finish := s.begin(ctx, "add_document", traces.TransactionID(id), traces.Actor(actor.ID.String()))
	defer func() { finish(err) }()

	doc := Document{
		Type: strings.TrimSpace(req.Type),
		URL:  strings.TrimSpace(req.URL),
		Name: strings.TrimSpace(req.Name),
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.RoleOf(actor) == RoleNone {
		return nil, authError("add_document", RoleBuyer, RoleSeller, RoleAdmin)
	}
	if doc.Type == "" || doc.URL == "" || doc.Name == "" {
		return nil, ErrInvalidDocument
	}

	now := s.now().UTC()
	doc.UploadedBy = actor.performer()
	doc.UploadedAt = now
	return s.commit(ctx, current, Patch{
		Document:  &doc,
		Event:     documentUploadedEvent(doc.UploadedBy, doc, now),
		UpdatedAt: now,
	})
}

// Get returns a transaction without access checks.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.load(ctx, id)
}

// GetForActor returns a transaction the actor participates in or administers.
func (s *Service) GetForActor(ctx context.Context, id string, actor Actor) (*Transaction, error) {
	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.RoleOf(actor) == RoleNone {
		return nil, authError("get", RoleBuyer, RoleSeller, RoleAdmin)
	}
	return tx, nil
}

// List returns a page of transactions. Non-admins only ever see their own.
func (s *Service) List(ctx context.Context, f ListFilter, page pagination.Page, actor Actor) (res pagination.Result[*Transaction], err error) {
	ctx, finish := s.begin(ctx, "list")
	defer func() { finish(err) }()

	if !actor.IsAdmin() {
		f.Participants = actor.ids()
		if len(f.Participants) == 0 {
			return res, authError("list", RoleBuyer, RoleSeller)
		}
	}
	page = page.Normalize()

	type listed struct {
		items []*Transaction
		total int
	}
	out, err := callStore(ctx, s, "list transactions", func(ctx context.Context) (listed, error) {
		items, total, err := s.store.List(ctx, f, page)
		return listed{items, total}, err
	})
	if err != nil {
		return res, err
	}
	return pagination.NewResult(out.items, page, out.total), nil
}

// Statistics returns counts by status and monthly volume rollups.
func (s *Service) Statistics(ctx context.Context) (stats *Statistics, err error) {
	ctx, finish := s.begin(ctx, "statistics")
	defer func() { finish(err) }()

	var (
		counts  map[Status]int
		monthly []MonthlyRollup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = callStore(gctx, s, "count by status", func(ctx context.Context) (map[Status]int, error) {
			return s.store.CountByStatus(ctx)
		})
		return err
	})
	g.Go(func() error {
		var err error
		monthly, err = callStore(gctx, s, "monthly rollups", s.store.MonthlyRollups)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats = &Statistics{ByStatus: counts, Monthly: monthly}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.Monthly == nil {
		stats.Monthly = []MonthlyRollup{}
	}
	return stats, nil
}

// VolumesByDate returns daily summed amounts for transactions created in
// the half-open range [from, to).
func (s *Service) VolumesByDate(ctx context.Context, from, to time.Time) (out []DailyVolume, err error) {
	ctx, finish := s.begin(ctx, "volumes_by_date")
	defer func() { finish(err) }()

	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}
	out, err = callStore(ctx, s, "daily volumes", func(ctx context.Context) ([]DailyVolume, error) {
		return s.store.DailyVolumes(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []DailyVolume{}
	}
	return out, nil
}

// CountByStatus exposes the store's status counts.
func (s *Service) CountByStatus(ctx context.Context, statuses ...Status) (map[Status]int, error) {
	return callStore(ctx, s, "count by status", func(ctx context.Context) (map[Status]int, error) {
		return s.store.CountByStatus(ctx, statuses...)
	})
}

// commit applies patch with a compare-and-swap on the status read earlier.
func (s *Service) commit(ctx context.Context, current *Transaction, patch Patch) (*Transaction, error) {
	tx, err := callStore(ctx, s, "update transaction", func(ctx context.Context) (*Transaction, error) {
		return s.store.ConditionalUpdate(ctx, current.ID, current.Status, patch)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.EscrowConflictsTotal.Inc()
		}
		return nil, err
	}

	if tx.Status != current.Status {
		metrics.EscrowTransitionsTotal.WithLabelValues(string(current.Status), string(tx.Status)).Inc()
		if tx.Status.IsTerminal() {
			metrics.EscrowTimeToClose.WithLabelValues(string(tx.Status)).Observe(tx.UpdatedAt.Sub(tx.CreatedAt).Seconds())
		}
		logging.L(ctx).Info("escrow status changed",
			"transaction_id", tx.ID, "from", current.Status, "to", tx.Status)
	}
	return tx, nil
}

func (s *Service) load(ctx context.Context, id string) (*Transaction, error) {
	return callStore(ctx, s, "get transaction", func(ctx context.Context) (*Transaction, error) {
		return s.store.Get(ctx, id)
	})
}

func (s *Service) lock(ctx context.Context, id string) (func(), error) {
	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, upstream("lock transaction", err)
	}
	return unlock, nil
}

// confirmPayment consults the gateway when one is configured and the
// transaction names a payment reference.
func (s *Service) confirmPayment(ctx context.Context, tx *Transaction) error {
	if s.confirmer == nil || tx.PaymentReference == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	ok, err := s.confirmer.Confirmed(ctx, tx.PaymentReference)
	switch {
	case errors.Is(err, payments.ErrUnknownReference):
		return ErrPaymentNotConfirmed
	case err != nil:
		return upstream("confirm payment", err)
	case !ok:
		return ErrPaymentNotConfirmed
	}
	return nil
}

func (s *Service) adminIDs(ctx context.Context) []identity.ID {
	if s.admins == nil {
		return nil
	}
	ids, err := s.admins.AdminIDs(ctx)
	if err != nil {
		logging.L(ctx).Warn("admin directory unavailable, dispute notification limited to participants", "error", err)
		return nil
	}
	return ids
}

// emit enqueues one notification per distinct recipient, skipping the
// sender. Failures are logged and never returned.
func (s *Service) emit(ctx context.Context, tx *Transaction, sender identity.ID, typ notify.Type, title, message string, recipients []identity.ID) {
	if s.notifier == nil {
		return
	}
	seen := make(map[identity.ID]bool, len(recipients))
	for _, r := range recipients {
		if r.IsZero() || r == sender || seen[r] {
			continue
		}
		seen[r] = true
		err := s.notifier.CreateNotification(ctx, notify.Notification{
			Recipient: r.String(),
			Sender:    sender.String(),
			Type:      typ,
			Title:     title,
			Message:   message,
			Data: map[string]any{
				"transactionId": tx.ID,
				"reference":     tx.Reference,
				"propertyId":    tx.PropertyID,
				"status":        string(tx.Status),
			},
		})
		if err != nil {
			logging.L(ctx).Warn("notification not queued",
				"transaction_id", tx.ID, "type", typ, "recipient", r, "error", err)
		}
	}
}

func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := traces.StartSpan(ctx, "escrow."+op, attrs...)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		metrics.EscrowOperationsTotal.WithLabelValues(op, outcome).Inc()
		traces.End(span, err)
	}
}

// callStore runs fn under the store timeout and maps infrastructure
// failures to ErrUpstreamUnavailable.
func callStore[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, storeError(op, err)
	}
	return v, nil
}

func storeError(op string, err error) error {
	if KindOf(err) != KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return upstream(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return upstream(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// permitted applies the per-target role rules. A participant who is also
// an administrator may act in either capacity.
func permitted(tx *Transaction, actor Actor, to Status) bool {
	if mayRequest(tx.RoleOf(actor), to) {
		return true
	}
	return actor.IsAdmin() && mayRequest(RoleAdmin, to)
}

func sellerOf(p *property.Property) (identity.ID, bool) {
	if id, ok := identity.ByID(p.Owner.ID).Canonical(); ok {
		return id, true
	}
	return identity.ByEmail(p.Owner.Email).Canonical()
}

// ownsByEmail reports whether the actor's email is the property owner's,
// whatever id the owner is recorded under.
func ownsByEmail(a Actor, p *property.Property) bool {
	owner, ok := identity.ByEmail(p.Owner.Email).Canonical()
	if !ok {
		return false
	}
	mine, ok := identity.ByEmail(a.Email).Canonical()
	return ok && mine == owner
}

func propertyName(tx *Transaction) string {
	if tx.Property.Title != "" {
		return tx.Property.Title
	}
	return "property " + tx.PropertyID
}

// canonical returns the id the actor is recorded under.
func (a Actor) canonical() (identity.ID, bool) {
	if !a.ID.IsZero() {
		return a.ID, true
	}
	return identity.ByEmail(a.Email).Canonical()
}

// performer is the id written to timelines and dispute records.
func (a Actor) performer() identity.ID {
	id, _ := a.canonical()
	return id
}

// ids returns every id the actor may be recorded under.
func (a Actor) ids() []identity.ID {
	var out []identity.ID
	if !a.ID.IsZero() {
		out = append(out, a.ID)
	}
	if email, ok := identity.ByEmail(a.Email).Canonical(); ok && email != a.ID {
		out = append(out, email)
	}
	return out
}
