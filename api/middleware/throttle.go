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
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CounterStore counts hits per key inside a window that starts on the first hit.
type CounterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// bucket is one counter a throttle checks. subject extracts what the counter
// is keyed on; an empty subject skips the bucket.
type bucket struct {
	dimension string
	max       int64
	hashed    bool
	subject   func(r *http.Request, body []byte) string
}

// Throttle is a set of fixed window counters sharing one window.
type Throttle struct {
	name      string
	window    time.Duration
	buckets   []bucket
	needsBody bool
}

func NewThrottle(name string, window time.Duration) Throttle {
	return Throttle{name: strings.ToLower(strings.TrimSpace(name)), window: window}
}

func (t Throttle) with(b bucket) Throttle {
	if b.max <= 0 {
		return t
	}
	t.buckets = append(append([]bucket(nil), t.buckets...), b)
	return t
}

// PerIP counts by the caller's address.
func (t Throttle) PerIP(max int) Throttle {
	return t.with(bucket{dimension: "ip", max: int64(max), subject: func(r *http.Request, _ []byte) string {
		return clientIP(r)
	}})
}

// PerEmail counts by the "email" field of the JSON body, so one account
// cannot be guessed at from many addresses.
func (t Throttle) PerEmail(max int) Throttle {
	if max > 0 {
		t.needsBody = true
	}
	return t.with(bucket{dimension: "email", max: int64(max), hashed: true, subject: emailFromBody})
}

// PerSession counts by the authenticated session and must run after Auth.
func (t Throttle) PerSession(max int) Throttle {
	return t.with(bucket{dimension: "session", max: int64(max), hashed: true, subject: func(r *http.Request, _ []byte) string {
		return SessionIDFromContext(r.Context())
	}})
}

func (t Throttle) label() string {
	if t.name == "" {
		return "auth"
	}
	return t.name
}

// Throttled rejects requests once any bucket of t is over its limit. A
// throttle without a window or buckets is a no-op.
func Throttled(t Throttle, store CounterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || t.window <= 0 || len(t.buckets) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if t.needsBody {
				raw, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				body = raw
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}

			for _, b := range t.buckets {
				subject := b.subject(r, body)
				if subject == "" {
					continue
				}
				if b.hashed {
					subject = digest(subject)
				}
				hits, err := store.IncrWithTTL(ctx, store.RateLimitKey(b.dimension+":"+t.label()+":"+subject), t.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if hits > b.max {
					t.reject(ctx, logg, w, b, hits)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (t Throttle) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, b bucket, hits int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"throttle":       t.label(),
			"dimension":      b.dimension,
			"hits":           hits,
			"limit":          b.max,
			"window_seconds": int(t.window.Seconds()),
		}), "request throttled")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(t.window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(_ *http.Request, body []byte) string {
	var peek struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &peek) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(peek.Email))
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
