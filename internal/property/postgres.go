package property

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PostgresLookup reads listings from the properties table owned by the
// listings service. It never writes.
type PostgresLookup struct {
	db *sql.DB
}

// NewPostgresLookup creates a PostgreSQL-backed lookup.
func NewPostgresLookup(db *sql.DB) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (p *PostgresLookup) GetPropertyByID(ctx context.Context, id string) (*Property, error) {
	var (
		prop       Property
		price      string
		ownerEmail sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, title, price::TEXT, status, owner_id, owner_email
		FROM properties
		WHERE id = $1`, id,
	).Scan(&prop.ID, &prop.Title, &price, &prop.Status, &prop.Owner.ID, &ownerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	prop.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("property %s has malformed price %q: %w", id, price, err)
	}
	prop.Owner.Email = ownerEmail.String
	return &prop, nil
}

var _ Lookup = (*PostgresLookup)(nil)
