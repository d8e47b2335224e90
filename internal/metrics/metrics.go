package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Checkout counts outcomes of the checkout and settlement pipeline.
type Checkout struct {
	SessionsCreated      Counter
	Settlements          Counter
	IdempotentHits       Counter
	StockConflicts       Counter
	Reconciliations      Counter
	Declines             Counter
	NotificationsSent    Counter
	NotificationFailures Counter

	settleCount  Counter
	settleMicros Counter
}

func NewCheckout() *Checkout {
	return &Checkout{}
}

// ObserveSettlement records how long one settlement transaction took.
func (c *Checkout) ObserveSettlement(d time.Duration) {
	c.settleCount.Inc()
	c.settleMicros.Add(uint64(d.Microseconds()))
}

func (c *Checkout) Snapshot() map[string]uint64 {
	out := map[string]uint64{
		"sessions_created":      c.SessionsCreated.Load(),
		"settlements":           c.Settlements.Load(),
		"idempotent_hits":       c.IdempotentHits.Load(),
		"stock_conflicts":       c.StockConflicts.Load(),
		"reconciliations":       c.Reconciliations.Load(),
		"declines":              c.Declines.Load(),
		"notifications_sent":    c.NotificationsSent.Load(),
		"notification_failures": c.NotificationFailures.Load(),
		"settle_avg_micros":     0,
	}
	if n := c.settleCount.Load(); n > 0 {
		out["settle_avg_micros"] = c.settleMicros.Load() / n
	}
	return out
}
