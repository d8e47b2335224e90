package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"marketplace-be/internal/checkout"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/transport"

	"go.uber.org/zap"
)

const (
	CallbackTokenHeader = "X-Callback-Token"
	maxBodyBytes        = 1 << 20
)

// Payload is the gateway's payment-link callback.
type Payload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID            string             `json:"id"`
		InvoiceNumber string             `json:"invoiceNumber"`
		Status        payment.LinkStatus `json:"status"`
	} `json:"data"`
}

// Confirmer runs the same confirmation routine as the client poll.
type Confirmer interface {
	ConfirmFromGateway(ctx context.Context, sessionID string) (*checkout.ConfirmResult, error)
}

type Handler struct {
	confirmer     Confirmer
	repo          payment.Repository
	callbackToken string
}

func NewHandler(confirmer Confirmer, repo payment.Repository, callbackToken string) *Handler {
	return &Handler{confirmer: confirmer, repo: repo, callbackToken: callbackToken}
}

// PaymentWebhook records the callback and, for a paid link, confirms the
// session. The callback body is never trusted for the paid state: the
// confirmation re-queries the gateway.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "PaymentWebhook"),
	)

	if !h.verify(r) {
		log.Warn("invalid callback token")
		transport.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid callback token")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		transport.RespondError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		transport.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if p.ID == "" || p.Data.InvoiceNumber == "" {
		transport.RespondError(w, http.StatusBadRequest, "invalid_request", "missing event id or invoice number")
		return
	}

	log = log.With(
		zap.String("event_id", p.ID),
		zap.String("session_id", p.Data.InvoiceNumber),
	)

	webhookID, duplicate, err := h.repo.SaveWebhook(ctx, payment.Webhook{
		Provider:       payment.ProviderName,
		EventID:        p.ID,
		EventType:      p.Type,
		InvoiceNumber:  p.Data.InvoiceNumber,
		Payload:        body,
		SignatureValid: true,
	})
	if err != nil {
		log.Error("failed to save webhook", zap.Error(err))
		transport.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to record event")
		return
	}
	if duplicate {
		log.Info("duplicate webhook ignored")
		transport.RespondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if !p.Data.Status.Paid() {
		h.processed(ctx, webhookID)
		transport.RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	res, err := h.confirmer.ConfirmFromGateway(ctx, p.Data.InvoiceNumber)

	var conflict *checkout.SettlementConflictError
	switch {
	case errors.As(err, &conflict):
		// Flagged for reconciliation already; a redelivery cannot fix it.
		h.failed(ctx, webhookID, err.Error())
		transport.RespondJSON(w, http.StatusOK, map[string]string{"status": "reconciliation"})
		return
	case errors.Is(err, checkout.ErrSessionNotFound):
		h.failed(ctx, webhookID, err.Error())
		transport.RespondJSON(w, http.StatusOK, map[string]string{"status": "unknown_session"})
		return
	case err != nil:
		log.Error("failed to confirm session", zap.Error(err))
		h.failed(ctx, webhookID, err.Error())
		transport.RespondError(w, http.StatusInternalServerError, "internal_error", "confirmation failed")
		return
	}

	if res.Status == checkout.StatusPending {
		// The gateway does not yet agree the link is paid. Leave the event
		// unprocessed so the redelivery confirms it.
		h.failed(ctx, webhookID, "gateway has not confirmed payment")
		transport.RespondError(w, http.StatusServiceUnavailable, "not_confirmed", "payment not yet confirmed")
		return
	}

	h.processed(ctx, webhookID)
	transport.RespondJSON(w, http.StatusOK, res)
}

func (h *Handler) verify(r *http.Request) bool {
	if h.callbackToken == "" {
		return false
	}
	got := r.Header.Get(CallbackTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.callbackToken)) == 1
}

func (h *Handler) processed(ctx context.Context, id int64) {
	if err := h.repo.MarkWebhookProcessed(ctx, id); err != nil {
		logger.FromCtx(ctx).Error("failed to mark webhook processed", zap.Int64("webhook_id", id), zap.Error(err))
	}
}

func (h *Handler) failed(ctx context.Context, id int64, reason string) {
	if err := h.repo.MarkWebhookFailed(ctx, id, reason); err != nil {
		logger.FromCtx(ctx).Error("failed to mark webhook failed", zap.Int64("webhook_id", id), zap.Error(err))
	}
}
