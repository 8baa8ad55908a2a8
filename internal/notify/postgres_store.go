package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbd888/homeescrow/internal/pagination"
)

// PostgresStore persists inbox entries in the notifications table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed inbox store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationColumns = `id, recipient_id, sender_id, type, title, message, data, read, created_at, read_at`

func (p *PostgresStore) Create(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Recipient, nullString(n.Sender), string(n.Type), n.Title, n.Message,
		data, n.Read, n.CreatedAt, n.ReadAt,
	)
	return err
}

func (p *PostgresStore) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, page pagination.Page) ([]*Notification, int, error) {
	page = page.Normalize()

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND ($2 = FALSE OR read = FALSE)`,
		recipient, unreadOnly,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		recipient, unreadOnly, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (p *PostgresStore) MarkRead(ctx context.Context, id, recipient string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2`,
		id, recipient, at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CountUnread(ctx context.Context, recipient string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`, recipient,
	).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (*Notification, error) {
	var (
		n      Notification
		sender sql.NullString
		typ    string
		data   []byte
		readAt sql.NullTime
	)
	if err := s.Scan(&n.ID, &n.Recipient, &sender, &typ, &n.Title, &n.Message, &data, &n.Read, &n.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	n.Sender = sender.String
	n.Type = Type(typ)
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
