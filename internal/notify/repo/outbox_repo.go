package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Ashrafnet/CommunityServer/internal/notify/entity"
)

// OutboxRepo queues notifications for a delivery worker.
type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// EnsureTable creates the notification_outbox table if it does not already exist.
func (r *OutboxRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS notification_outbox (
		id varchar(32) PRIMARY KEY,
		kind varchar(32) NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		recipient TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `CREATE INDEX IF NOT EXISTS idx_notification_outbox_account ON notification_outbox (account_id)`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

type messageRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	AccountID string    `db:"account_id"`
	Recipient string    `db:"recipient"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// Enqueue stores m for later delivery.
func (r *OutboxRepo) Enqueue(ctx context.Context, m entity.Message) error {
	payload := "{}"
	if len(m.Payload) > 0 {
		payload = string(m.Payload)
	}
	const q = `INSERT INTO notification_outbox (id, kind, account_id, recipient, payload, created_at)
		VALUES (:id, :kind, :account_id, :recipient, :payload, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, messageRow{
		ID:        m.ID,
		Kind:      string(m.Kind),
		AccountID: m.AccountID,
		Recipient: m.Recipient,
		Payload:   payload,
		CreatedAt: m.CreatedAt.UTC(),
	})
	return err
}

// ListByAccount returns the queued messages of an account, oldest first.
func (r *OutboxRepo) ListByAccount(ctx context.Context, accountID string) ([]entity.Message, error) {
	q := r.db.Rebind(`SELECT id, kind, account_id, recipient, payload, created_at
		FROM notification_outbox WHERE account_id = ? ORDER BY created_at, id`)
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, q, accountID); err != nil {
		return nil, err
	}
	out := make([]entity.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.Message{
			ID:        row.ID,
			Kind:      entity.Kind(row.Kind),
			AccountID: row.AccountID,
			Recipient: row.Recipient,
			Payload:   json.RawMessage(row.Payload),
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
