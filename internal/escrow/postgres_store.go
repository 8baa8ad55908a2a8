package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/pagination"
)

// liveIndex is the partial unique index allowing one live escrow per property.
const liveIndex = "escrow_transactions_one_live_per_property"

// PostgresStore persists escrow transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const transactionColumns = `id, reference, payment_reference, property_id, property,
		buyer_id, seller_id, amount, currency, payment_method,
		platform_fee, processing_fee, total_fees, status, dispute,
		documents, timeline, expected_completion, actual_completion,
		created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	propertyJSON, err := json.Marshal(tx.Property)
	if err != nil {
		return fmt.Errorf("encode property snapshot: %w", err)
	}
	documentsJSON, err := jsonArray(tx.Documents)
	if err != nil {
		return err
	}
	timelineJSON, err := jsonArray(tx.Timeline)
	if err != nil {
		return err
	}
	disputeJSON, err := nullDispute(tx.Dispute)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO escrow_transactions (`+transactionColumns+`)
		VALUES (
			$1, $2, $3, $4, $5::JSONB,
			$6, $7, $8::NUMERIC(20,2), $9, $10,
			$11::NUMERIC(20,2), $12::NUMERIC(20,2), $13::NUMERIC(20,2), $14, $15::JSONB,
			$16::JSONB, $17::JSONB, $18, $19,
			$20, $21
		)`,
		tx.ID, tx.Reference, nullString(tx.PaymentReference), tx.PropertyID, string(propertyJSON),
		tx.BuyerID.String(), tx.SellerID.String(), tx.Amount, tx.Currency, string(tx.PaymentMethod),
		tx.Fees.PlatformFee, tx.Fees.ProcessingFee, tx.Fees.TotalFees, string(tx.Status), disputeJSON,
		documentsJSON, timelineJSON, nullTime(tx.ExpectedCompletion), nullTime(tx.ActualCompletion),
		tx.CreatedAt, tx.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && pqErr.Constraint == liveIndex {
		return ErrDuplicateActiveEscrow
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM escrow_transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

// ConditionalUpdate runs a single UPDATE guarded by the expected status, so
// the change and its timeline event commit together or not at all.
func (p *PostgresStore) ConditionalUpdate(ctx context.Context, id string, expected Status, patch Patch) (*Transaction, error) {
	eventJSON, err := json.Marshal([]TimelineEvent{patch.Event})
	if err != nil {
		return nil, fmt.Errorf("encode timeline event: %w", err)
	}
	disputeJSON, err := nullDispute(patch.Dispute)
	if err != nil {
		return nil, err
	}
	var documentJSON sql.NullString
	if patch.Document != nil {
		b, err := json.Marshal([]Document{*patch.Document})
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		documentJSON = sql.NullString{String: string(b), Valid: true}
	}

	row := p.db.QueryRowContext(ctx, `
		UPDATE escrow_transactions SET
			status = COALESCE(NULLIF($3, ''), status),
			dispute = COALESCE($4::JSONB, dispute),
			documents = CASE WHEN $5::JSONB IS NULL THEN documents ELSE documents || $5::JSONB END,
			actual_completion = COALESCE($6, actual_completion),
			timeline = timeline || $7::JSONB,
			updated_at = $8
		WHERE id = $1 AND status = $2
		RETURNING `+transactionColumns,
		id, string(expected),
		string(patch.Status), disputeJSON, documentJSON,
		nullTime(patch.ActualCompletion), string(eventJSON), patch.UpdatedAt,
	)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM escrow_transactions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrTransactionNotFound
		}
		return nil, ErrConflict
	}
	return tx, err
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter, page pagination.Page) ([]*Transaction, int, error) {
	page = page.Normalize()
	where, args := listWhere(f)

	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escrow_transactions`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.Limit, page.Offset())
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM escrow_transactions%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, transactionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	txns, err := scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func listWhere(f ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		clauses = append(clauses, "status = "+arg(string(f.Status)))
	}
	if f.PropertyID != "" {
		clauses = append(clauses, "property_id = "+arg(f.PropertyID))
	}
	if len(f.Participants) > 0 {
		ids := make([]string, len(f.Participants))
		for i, id := range f.Participants {
			ids[i] = id.String()
		}
		n := arg(pq.Array(ids))
		switch f.Side {
		case RoleBuyer:
			clauses = append(clauses, "buyer_id = ANY("+n+")")
		case RoleSeller:
			clauses = append(clauses, "seller_id = ANY("+n+")")
		default:
			clauses = append(clauses, "(buyer_id = ANY("+n+") OR seller_id = ANY("+n+"))")
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (p *PostgresStore) CountByStatus(ctx context.Context, statuses ...Status) (map[Status]int, error) {
	if len(statuses) == 0 {
		statuses = AllStatuses
	}
	names := make([]string, len(statuses))
	counts := make(map[Status]int, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
		counts[s] = 0
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM escrow_transactions
		WHERE status = ANY($1)
		GROUP BY status`, pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (p *PostgresStore) MonthlyRollups(ctx context.Context) ([]MonthlyRollup, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month,
		       COUNT(*),
		       COALESCE(SUM(amount), 0)::TEXT,
		       COALESCE(SUM(total_fees), 0)::TEXT
		FROM escrow_transactions
		GROUP BY month
		ORDER BY month`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []MonthlyRollup{}
	for rows.Next() {
		var r MonthlyRollup
		if err := rows.Scan(&r.Month, &r.Count, &r.Volume, &r.Fees); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DailyVolumes(ctx context.Context, from, to time.Time) ([]DailyVolume, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*),
		       COALESCE(SUM(amount), 0)::TEXT
		FROM escrow_transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day`, from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []DailyVolume{}
	for rows.Next() {
		var d DailyVolume
		if err := rows.Scan(&d.Date, &d.Count, &d.Volume); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	tx := &Transaction{}
	var (
		paymentRef         sql.NullString
		propertyJSON       []byte
		buyerID, sellerID  string
		method, status     string
		disputeJSON        []byte
		documentsJSON      []byte
		timelineJSON       []byte
		expectedCompletion sql.NullTime
		actualCompletion   sql.NullTime
		amount             decimal.Decimal
	)

	err := s.Scan(
		&tx.ID, &tx.Reference, &paymentRef, &tx.PropertyID, &propertyJSON,
		&buyerID, &sellerID, &amount, &tx.Currency, &method,
		&tx.Fees.PlatformFee, &tx.Fees.ProcessingFee, &tx.Fees.TotalFees, &status, &disputeJSON,
		&documentsJSON, &timelineJSON, &expectedCompletion, &actualCompletion,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.PaymentReference = paymentRef.String
	tx.BuyerID = identity.ID(buyerID)
	tx.SellerID = identity.ID(sellerID)
	tx.Amount = amount
	tx.PaymentMethod = PaymentMethod(method)
	tx.Status = Status(status)
	if expectedCompletion.Valid {
		tx.ExpectedCompletion = &expectedCompletion.Time
	}
	if actualCompletion.Valid {
		tx.ActualCompletion = &actualCompletion.Time
	}
	if err := json.Unmarshal(propertyJSON, &tx.Property); err != nil {
		return nil, fmt.Errorf("decode property snapshot: %w", err)
	}
	if len(disputeJSON) > 0 {
		tx.Dispute = &Dispute{}
		if err := json.Unmarshal(disputeJSON, tx.Dispute); err != nil {
			return nil, fmt.Errorf("decode dispute: %w", err)
		}
	}
	if err := json.Unmarshal(documentsJSON, &tx.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	if err := json.Unmarshal(timelineJSON, &tx.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	if tx.Documents == nil {
		tx.Documents = []Document{}
	}
	return tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// jsonArray encodes a slice as a JSON array, never null.
func jsonArray[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", items, err)
	}
	return string(b), nil
}

func nullDispute(v *Dispute) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode dispute: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
