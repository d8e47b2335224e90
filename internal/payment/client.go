package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace-be/internal/logger"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ClientConfig struct {
	BaseURL   string
	APIKey    string
	ReturnURL string

	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Client talks JSON over HTTP to the card gateway. Transient failures
// (network errors, 5xx, HTML bodies) are retried up to MaxAttempts; a
// circuit breaker stops calls while the gateway keeps failing.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// ----------------- Constructor -----------------

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIKey == "" {
		logger.L().Warn("gateway API key is empty")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Declines and other 4xx answers mean the gateway is healthy.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L().Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: breaker,
	}
}

// ----------------- CreatePaymentLink -----------------

func (c *Client) CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "CreatePaymentLink"),
		zap.String("invoice_number", req.InvoiceNumber),
		zap.Int64("amount_cents", int64(req.AmountCents)),
	)

	body := map[string]any{
		"amount":        req.AmountCents.Format(),
		"description":   req.Description,
		"invoiceNumber": req.InvoiceNumber,
	}

	raw, err := c.do(ctx, http.MethodPost, "/payment-links", body)
	if err != nil {
		log.Error("payment link creation failed", zap.Error(err))
		return nil, err
	}

	var res struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.ID == "" || res.URL == "" {
		log.Error("failed decoding payment link", zap.ByteString("response", raw))
		return nil, ErrMalformedPayload
	}

	link, err := c.withReturnURL(res.URL)
	if err != nil {
		log.Error("gateway returned an invalid redirect url", zap.Error(err))
		return nil, ErrMalformedPayload
	}

	log.Info("payment link created", zap.String("link_id", res.ID))
	return &PaymentLink{ID: res.ID, URL: link}, nil
}

func (c *Client) withReturnURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if c.cfg.ReturnURL == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("returnUrl", c.cfg.ReturnURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ----------------- QueryPaymentLinks -----------------

func (c *Client) QueryPaymentLinks(ctx context.Context, invoiceNumber string) ([]LinkRecord, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "QueryPaymentLinks"),
		zap.String("invoice_number", invoiceNumber),
	)

	path := "/payment-links?" + url.Values{"invoiceNumber": {invoiceNumber}}.Encode()
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		log.Error("payment link query failed", zap.Error(err))
		return nil, err
	}

	var res struct {
		Data []LinkRecord `json:"data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("failed decoding payment links", zap.Error(err))
		return nil, ErrMalformedPayload
	}

	return res.Data, nil
}

// ----------------- Sale -----------------

func (c *Client) Sale(ctx context.Context, req SaleRequest) (*SaleResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Sale"),
		zap.String("transaction_number", req.TransactionNumber),
		zap.String("card", req.Card.Masked()),
		zap.Int64("amount_cents", int64(req.AmountCents)),
	)

	body := map[string]any{
		"amount":            req.AmountCents.Format(),
		"transactionNumber": req.TransactionNumber,
		"card": map[string]any{
			"number":     req.Card.Number,
			"expMonth":   req.Card.ExpMonth,
			"expYear":    req.Card.ExpYear,
			"cvv":        req.Card.CVV,
			"holderName": req.Card.HolderName,
		},
	}

	raw, err := c.do(ctx, http.MethodPost, "/sales", body)
	if err != nil {
		log.Error("card sale failed", zap.Error(err))
		return nil, err
	}

	var res SaleResult
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("failed decoding sale response", zap.Error(err))
		return nil, ErrMalformedPayload
	}

	log.Info("card sale answered",
		zap.Int("response_code", res.ResponseCode),
		zap.String("verbiage", res.Verbiage),
		zap.Bool("approved", res.Approved()),
	)
	return &res, nil
}

// ----------------- transport -----------------

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		raw, err := c.breaker.Execute(func() ([]byte, error) {
			return c.send(ctx, method, path, payload)
		})
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if !IsTransient(err) {
			return nil, err
		}

		lastErr = err
		logger.FromCtx(ctx).Warn("transient gateway failure",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < c.cfg.MaxAttempts {
			if err := sleepCtx(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &GatewayError{Body: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: err.Error(), Transient: true}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: truncate(raw), Transient: true}
	case resp.StatusCode >= 400:
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: truncate(raw)}
	case looksLikeHTML(resp.Header.Get("Content-Type"), raw):
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: "unexpected html response", Transient: true}
	}

	return raw, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
