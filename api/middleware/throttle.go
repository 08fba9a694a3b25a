package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ThrottleKey extracts the subject a rule counts against. An empty key skips
// the rule for that request.
type ThrottleKey struct {
	label     string
	needsBody bool
	extract   func(r *http.Request, body []byte) string
}

// ByClientIP counts per caller address, honoring proxy headers.
var ByClientIP = ThrottleKey{label: "ip", extract: func(r *http.Request, _ []byte) string {
	return clientIP(r)
}}

// ByBodyEmail counts per hashed "email" field of a JSON body.
var ByBodyEmail = ThrottleKey{label: "email", needsBody: true, extract: func(_ *http.Request, body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}}

// ByIdentity counts per authenticated account; mount it after Auth.
var ByIdentity = ThrottleKey{label: "user", extract: func(r *http.Request, _ []byte) string {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return id.UID.String()
}}

type throttleRule struct {
	key   ThrottleKey
	limit int
}

// ThrottlePolicy is a named fixed window with one limit per key.
type ThrottlePolicy struct {
	name   string
	window time.Duration
	rules  []throttleRule
}

func NewThrottlePolicy(name string, window time.Duration) ThrottlePolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return ThrottlePolicy{name: name, window: window}
}

// Limit adds a rule; non-positive limits are ignored.
func (p ThrottlePolicy) Limit(key ThrottleKey, limit int) ThrottlePolicy {
	if limit <= 0 {
		return p
	}
	rules := make([]throttleRule, len(p.rules), len(p.rules)+1)
	copy(rules, p.rules)
	p.rules = append(rules, throttleRule{key: key, limit: limit})
	return p
}

func (p ThrottlePolicy) active() bool {
	return p.window > 0 && len(p.rules) > 0
}

func (p ThrottlePolicy) readsBody() bool {
	for _, rule := range p.rules {
		if rule.key.needsBody {
			return true
		}
	}
	return false
}

// Throttle rejects requests with RATE_LIMIT_EXCEEDED once any rule of the
// policy is over its limit inside the current window.
func Throttle(policy ThrottlePolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || counter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.readsBody() && r.Body != nil {
				raw, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.InvalidInput("body", "unreadable request body"))
					return
				}
				body = raw
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}

			for _, rule := range policy.rules {
				subject := rule.key.extract(r, body)
				if subject == "" {
					continue
				}
				scope := "throttle:" + policy.name + ":" + rule.key.label + ":" + subject
				allowed, count, err := counter.FixedWindowAllow(ctx, scope, int64(rule.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":         policy.name,
							"key":            rule.key.label,
							"attempts":       count,
							"limit":          rule.limit,
							"window_seconds": int(policy.window.Seconds()),
						}), "throttle.blocked")
					}
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
