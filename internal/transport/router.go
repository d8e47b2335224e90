package transport

import (
	"net/http"
	"time"

	"marketplace-be/internal/config"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const defaultRequestTimeout = 30 * time.Second

type RouterConfig struct {
	JWTSecret      []byte
	Runtime        config.Runtime
	Limiter        *middleware.RateLimiter
	RequestTimeout time.Duration
	// Webhook serves POST /webhooks/payment. It authenticates itself with
	// the gateway callback token rather than a customer session.
	Webhook http.Handler
}

func NewRouter(h *Handler, rc RouterConfig) http.Handler {
	timeout := rc.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	limiter := rc.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(h.internalKey)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(chimw.Timeout(timeout))
	r.Use(middleware.Runtime(rc.Runtime))

	r.Get("/healthz", h.Health)
	r.Get("/internal/metrics", h.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Post("/shipping/quote", h.Quote)
		if rc.Webhook != nil {
			r.Method(http.MethodPost, "/webhooks/payment", rc.Webhook)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(rc.JWTSecret))
		r.Use(limiter.Middleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Patch("/items/{itemID}", h.UpdateItem)
			r.Delete("/items/{itemID}", h.RemoveItem)
		})

		r.Put("/vendors/{vendorID}/shipping/{country}", h.SaveShippingConfig)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.StartCheckout)
			r.Post("/direct", h.StartDirectCharge)
			r.Post("/{sessionID}/confirm", h.Confirm)
			r.Get("/{sessionID}/status", h.SessionStatus)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderID}", h.GetOrder)
			r.Patch("/{orderID}/status", h.UpdateOrderStatus)
		})
	})

	return r
}
