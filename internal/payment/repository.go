package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// Webhook is one gateway callback as received.
type Webhook struct {
	Provider       string
	EventID        string
	EventType      string
	InvoiceNumber  string
	Payload        json.RawMessage
	SignatureValid bool
}

// Repository records gateway callbacks so a redelivered event is processed
// once. An event that was stored but never marked processed is handed out
// again on redelivery.
type Repository interface {
	SaveWebhook(ctx context.Context, w Webhook) (webhookID int64, isDuplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveWebhook(ctx context.Context, w Webhook) (int64, bool, error) {
	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		invoice_number,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET attempts = payment_webhooks.attempts + 1
	WHERE payment_webhooks.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		w.Provider,
		w.EventID,
		w.EventType,
		w.InvoiceNumber,
		w.SignatureValid,
		[]byte(w.Payload),
	).Scan(&id)

	if err != nil {
		// Already processed → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
