// Package cache provides the short-lived key/value store backing one-time
// flow bookkeeping, most importantly the single-use state nonce guard.
//
// Backends: memory (in-process, dev/test) and redis (multi-instance).
package cache

import "time"

// Store holds transient values with a TTL.
type Store interface {
	// Get returns the value, or false when absent or expired.
	Get(key string) ([]byte, bool)

	// Set stores the value for ttl. ttl <= 0 uses the backend default.
	Set(key string, value []byte, ttl time.Duration)

	// Take returns and removes the value in one step. A second Take of the
	// same key reports false, which is what makes nonces single-use.
	Take(key string) ([]byte, bool)

	// Delete removes the key.
	Delete(key string)
}
