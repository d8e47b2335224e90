package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketplace-be/internal/cart"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/config"
	"marketplace-be/internal/db"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/middleware"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/payment/webhook"
	"marketplace-be/internal/product"
	"marketplace-be/internal/shipping"
	"marketplace-be/internal/transport"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// app is the wired server plus what has to be stopped with it.
type app struct {
	handler    http.Handler
	limiter    *middleware.RateLimiter
	dispatcher *notification.Dispatcher
	closers    []io.Closer
}

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	a := buildApp(cfg, database, rdb)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go a.limiter.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	a.close()

	log.Info("server exited")
}

func buildApp(cfg *config.Config, database *sql.DB, rdb *redis.Client) *app {
	m := metrics.NewCheckout()
	a := &app{limiter: middleware.NewRateLimiter(cfg.InternalSecretKey)}

	productRepo := product.NewRepository(database)
	cartRepo := cart.NewRepository(database)
	cartSvc := cart.NewService(cartRepo, productRepo)

	shippingRepo := shipping.NewRepository(database)
	if rdb != nil {
		shippingRepo = shipping.NewCachedRepository(shippingRepo, shipping.NewRedisCache(rdb))
	}
	shippingSvc := shipping.NewService(shippingRepo)

	gateway := payment.NewClient(payment.ClientConfig{
		BaseURL:   cfg.GatewayBaseURL,
		APIKey:    cfg.GatewayAPIKey,
		ReturnURL: cfg.PaymentReturnURL,
	})

	sender := newSender(cfg)
	if c, ok := sender.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.dispatcher = notification.NewDispatcher(sender, cfg.NotifyRatePerSec, m)

	sessions := checkout.NewRepository(database)
	engine := checkout.NewEngine(sessions, gateway, a.dispatcher, m)
	manager := checkout.NewManager(checkout.Deps{
		Repo:        sessions,
		Carts:       cartRepo,
		Stock:       productRepo,
		Shipping:    shippingSvc,
		Gateway:     gateway,
		Engine:      engine,
		Metrics:     m,
		CardFeeRate: cfg.CardFeeRate,
	})

	hook := webhook.NewHandler(engine, payment.NewRepository(database), cfg.GatewayCallbackToken)

	h := transport.NewHandler(transport.Deps{
		Carts:       cartSvc,
		Shipping:    shippingSvc,
		Checkout:    manager,
		Sessions:    engine,
		Orders:      order.NewService(order.NewRepository(database)),
		Metrics:     m,
		InternalKey: cfg.InternalSecretKey,
	})

	a.handler = transport.NewRouter(h, transport.RouterConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		Runtime:   cfg.Runtime(),
		Limiter:   a.limiter,
		Webhook:   http.HandlerFunc(hook.PaymentWebhook),
	})
	return a
}

// newSender publishes to Kafka when brokers are configured and logs the
// messages otherwise.
func newSender(cfg *config.Config) notification.Sender {
	if len(cfg.KafkaBrokers) == 0 {
		logger.L().Warn("KAFKA_BROKERS not set, notifications are only logged")
		return notification.LogSender{}
	}
	return notification.NewKafkaSender(cfg.KafkaBrokers, cfg.NotifyTopic)
}

// close drains pending notifications before releasing the sender.
func (a *app) close() {
	a.dispatcher.Wait()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.L().Error("failed to close", zap.Error(err))
		}
	}
}

