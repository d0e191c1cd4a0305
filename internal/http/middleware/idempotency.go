// This file provides IdempotencyValidator, a middleware that enforces safe
// retries of mutating requests via the Idempotency-Key header. The actual
// persistence of keys lives in the repo layer; the middleware only validates
// the header, detects replays through an injected lookup, and marks replayed
// requests so the rate limiter can wave them through.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HeaderIdempotencyKey is the request header carrying the client-chosen
// idempotency key for mutating endpoints.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idempotencyKey"
	ctxKeyIdemReplay = "idempotencyReplay"
	ctxKeyRateBypass = "rateBypass"
)

// IdempotencyLookup reports whether a non-expired record already exists for
// the (user, key) pair. Implementations are expected to consult persistent
// storage; errors are treated as "no record" so a storage hiccup never blocks
// a first attempt.
type IdempotencyLookup func(ctx context.Context, userID int64, key string, now time.Time) (bool, error)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// Required rejects requests lacking the Idempotency-Key header with 400.
	// When false, requests without the header pass through untouched.
	Required bool
	// Lookup detects replays. When nil, replay detection is disabled and the
	// middleware only validates key shape.
	Lookup IdempotencyLookup
}

// IdempotencyValidator returns a middleware that validates the
// Idempotency-Key header on mutating requests. Keys must be UUIDs. When a
// Lookup is configured and the (user, key) pair has been seen before, the
// request is flagged as a replay and exempted from rate limiting, so a client
// retrying a timed-out create is never throttled into a different outcome.
//
// The middleware never writes the stored response itself; handlers call
// IsReplay and decide how to answer a replayed request.
func IdempotencyValidator(opt IdempotencyOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet ||
			c.Request.Method == http.MethodHead ||
			c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			if opt.Required {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"code":    "missing_idempotency_key",
					"message": "Idempotency-Key header is required",
				})
				return
			}
			c.Next()
			return
		}

		if _, err := uuid.Parse(key); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "invalid_idempotency_key",
				"message": "Idempotency-Key must be a valid UUID",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if opt.Lookup != nil {
			if userID, ok := UserID(c); ok {
				seen, err := opt.Lookup(c.Request.Context(), userID, key, time.Now().UTC())
				if err != nil {
					log.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed")
				} else if seen {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}

		c.Next()
	}
}

// GetIdempotencyKey returns the validated Idempotency-Key for the current
// request, or "" when none was supplied.
func GetIdempotencyKey(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyIdemKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IsReplay reports whether the current request carries an Idempotency-Key
// that has already been recorded for this user.
func IsReplay(c *gin.Context) bool {
	if v, ok := c.Get(ctxKeyIdemReplay); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
