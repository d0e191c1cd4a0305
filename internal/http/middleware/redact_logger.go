// This file provides RedactingLogger, a request-logging middleware that
// masks sensitive header values before they reach the structured logs.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures which request headers are masked by
// RedactingLogger. Header names are matched case-insensitively.
type RedactOptions struct {
	// MaskedHeaders lists header names whose values must never appear in
	// logs. When empty, a default set covering credentials and webhook
	// signatures is used.
	MaskedHeaders []string
}

// defaultMaskedHeaders covers the headers that carry secrets in this API:
// bearer tokens, cookies, API keys, and webhook HMAC signatures.
var defaultMaskedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Api-Key",
	"X-Webhook-Signature",
}

// RedactingLogger returns a Gin middleware that logs one structured line per
// request, with sensitive header values replaced by "[redacted]". It is an
// alternative to Logger for routes that receive credentials or signed
// payloads, such as the payment webhook.
func RedactingLogger(opt RedactOptions) gin.HandlerFunc {
	masked := opt.MaskedHeaders
	if len(masked) == 0 {
		masked = defaultMaskedHeaders
	}
	maskedSet := make(map[string]struct{}, len(masked))
	for _, h := range masked {
		maskedSet[strings.ToLower(h)] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		hdrs := make(map[string]string, len(c.Request.Header))
		for name, vals := range c.Request.Header {
			if len(vals) == 0 {
				continue
			}
			if _, hide := maskedSet[strings.ToLower(name)]; hide {
				hdrs[name] = "[redacted]"
			} else {
				hdrs[name] = vals[0]
			}
		}

		ev := log.Info()
		if len(c.Errors) > 0 || c.Writer.Status() >= 500 {
			ev = log.Error()
		}
		ev.
			Str("request_id", asString(c.Value("requestID"))).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Interface("headers", hdrs).
			Msg("http request")
	}
}
