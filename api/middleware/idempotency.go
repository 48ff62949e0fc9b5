package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	// IdempotencyHeader carries the client supplied replay key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayHeader marks a response served from a stored outcome.
	ReplayHeader = "Idempotent-Replay"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// maxIdempotentBody matches the cap DecodeJSONBody applies later.
	maxIdempotentBody = 1 << 20
)

// idempotentRoutes maps "METHOD template" to how long an outcome stays
// replayable. Templates are matched against the request path because group
// middleware only sees a partial chi pattern.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/checkout":                                         criticalIdempotencyTTL,
	http.MethodPost + " /api/v1/orders/{orderId}/cancel":                          criticalIdempotencyTTL,
	http.MethodPost + " /api/v1/cart/items":                                       defaultIdempotencyTTL,
	http.MethodPost + " /api/v1/coupons/claim":                                    defaultIdempotencyTTL,
	http.MethodPatch + " /api/admin/v1/orders/{orderId}/status":                   defaultIdempotencyTTL,
	http.MethodPatch + " /api/admin/v1/coupons/{couponId}/active":                 defaultIdempotencyTTL,
	http.MethodPatch + " /api/admin/v1/users/{userId}/points":                     defaultIdempotencyTTL,
	http.MethodPost + " /api/admin/v1/outbox/dead-letters/{deadLetterId}/requeue": defaultIdempotencyTTL,
}

// ReplayStore is the redis surface the idempotency middleware needs.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// outcome is what the ledger keeps per key. Status 0 means the first
// request is still being served.
type outcome struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (o outcome) settled() bool { return o.Status != 0 }

type replayLedger struct {
	store ReplayStore
	key   string
	ttl   time.Duration
}

// reserve claims the key for a new request. It reports false when another
// request already holds or settled it.
func (l replayLedger) reserve(ctx context.Context, fingerprint string) (bool, error) {
	marker, err := json.Marshal(outcome{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return l.store.SetNX(ctx, l.key, string(marker), l.ttl)
}

func (l replayLedger) load(ctx context.Context) (outcome, bool, error) {
	raw, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return outcome{}, false, nil
	}
	if err != nil {
		return outcome{}, false, err
	}
	var out outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return outcome{}, false, err
	}
	return out, true, nil
}

func (l replayLedger) settle(ctx context.Context, out outcome) error {
	encoded, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, l.key, string(encoded), l.ttl)
}

func (l replayLedger) release(ctx context.Context) error {
	return l.store.Del(ctx, l.key)
}

// Idempotency reserves the key before the handler runs so a retry that lands
// mid-flight gets a conflict rather than a second order. Settled outcomes
// below 500 are replayed byte for byte; a 5xx frees the key for another try.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayWindow(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			ledger := replayLedger{
				store: store,
				key:   store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey),
				ttl:   ttl,
			}

			reserved, err := ledger.reserve(ctx, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(ctx, w, ledger, fingerprint, logg)
				return
			}

			// The ledger write must land even when the client hung up.
			ledgerCtx := context.WithoutCancel(ctx)
			release := func() {
				if err := ledger.release(ledgerCtx); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				release()
				return
			}
			err = ledger.settle(ledgerCtx, outcome{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency outcome", err)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, ledger replayLedger, fingerprint string, logg *logger.Logger) {
	out, found, err := ledger.load(ctx)
	switch {
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
	case !found:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request expired, retry"))
	case out.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case !out.settled():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if out.ContentType != "" {
			w.Header().Set("Content-Type", out.ContentType)
		}
		w.Header().Set(ReplayHeader, "true")
		w.WriteHeader(out.Status)
		_, _ = w.Write(out.Body)
	}
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func replayWindow(method, path string) (time.Duration, bool) {
	for route, ttl := range idempotentRoutes {
		routeMethod, template, _ := strings.Cut(route, " ")
		if routeMethod == method && matchTemplate(template, path) {
			return ttl, true
		}
	}
	return 0, false
}

// matchTemplate compares path segments; a {param} segment matches any
// non-empty value.
func matchTemplate(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

// responseCapture tees the handler's response so it can be stored.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
