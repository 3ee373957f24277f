// Package httputil holds the HTTP plumbing shared by the API surface:
// the JSON envelope, body decoding with a size cap, client IP
// resolution, seq cursor parsing, and the two rate limiters.
package httputil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/watchpost/watchpost/internal/storage"
)

// Error codes of the wire envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidJSON  = "INVALID_JSON"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
	CodeInternal     = "INTERNAL_ERROR"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the {error, code} envelope every failure shares.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg, "code": code})
}

// ReadJSON decodes the request body into v, rejecting bodies over
// maxBytes and unknown fields.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func GenerateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

type ctxKey int

// CtxKeyRequestID carries the per-request ID through the handler chain.
const CtxKeyRequestID ctxKey = iota

// GetRequestID returns the request ID set by the requestID middleware,
// or "" when absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// StatusWriter captures the response status for request logging.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Flusher and Hijacker through the wrapper.
func (w *StatusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// ParseCursor reads ?limit= and ?after= for seq-cursor pagination.
// Limit defaults to 50 and caps at 200.
func ParseCursor(r *http.Request) storage.Cursor {
	c := storage.Cursor{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limit = min(n, 200)
		}
	}
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			c.After = &n
		}
	}
	return c
}

// ParseTrustedNets parses CIDR strings, accepting bare IPs as /32 or
// /128.
func ParseTrustedNets(cidrs []string) []net.IPNet {
	var nets []net.IPNet
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.Contains(c, "/") {
			if ip := net.ParseIP(c); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				c = fmt.Sprintf("%s/%d", c, bits)
			}
		}
		if _, n, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, *n)
		}
	}
	return nets
}

// ExtractIP resolves the client IP: first X-Forwarded-For entry, then
// X-Real-Ip, then the socket address. When trustedNets is non-empty the
// forwarding headers are only honored for peers inside those networks.
func ExtractIP(r *http.Request, trustedNets []net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if len(trustedNets) > 0 {
		peer := net.ParseIP(host)
		if peer == nil || !isTrusted(peer, trustedNets) {
			return host
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}
	return host
}

func isTrusted(ip net.IP, nets []net.IPNet) bool {
	for i := range nets {
		if nets[i].Contains(ip) {
			return true
		}
	}
	return false
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitorEntry
	rate     rate.Limit
	burst    int
	done     chan struct{}
}

type visitorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitorEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitorEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// Middleware rejects over-limit requests with 429 before they reach the
// router.
func (rl *RateLimiter) Middleware(trustedNets []net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(ExtractIP(r, trustedNets)) {
				WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FixedWindowLimiter counts events per key in fixed wall-clock windows.
// It backs the create endpoints: a key gets limit creates per window,
// then 429 until the window rolls over.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	size    time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewFixedWindowLimiter(limit int, size time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
		now:     time.Now,
	}
}

// Allow consumes one slot for key, reporting whether it was available.
func (fl *FixedWindowLimiter) Allow(key string) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := fl.now()
	w, exists := fl.windows[key]
	if !exists || now.Sub(w.start) >= fl.size {
		fl.prune(now)
		fl.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= fl.limit {
		return false
	}
	w.count++
	return true
}

// prune drops expired windows; called under the lock on window rollover
// so the map cannot grow without bound.
func (fl *FixedWindowLimiter) prune(now time.Time) {
	for key, w := range fl.windows {
		if now.Sub(w.start) >= fl.size {
			delete(fl.windows, key)
		}
	}
}
