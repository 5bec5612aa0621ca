package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{Idempotency-Key} -> order id
	KeyIdemCheckout = "idem:checkout:%d:%s"

	// Dedup of provider callbacks: dedup:payment:{payment_id}:{status}
	KeyDedupPayment = "dedup:payment:%s:%s"

	// Low stock alerts are sent at most once per item per TTLAlert.
	KeyLowStockAlert = "alert:lowstock:%d"

	// Only one instance runs the payment expiry sweep at a time.
	KeySweepLock = "lock:payment-sweep"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = time.Minute
	TTLDedup       = 48 * time.Hour
	TTLAlert       = time.Hour
)
