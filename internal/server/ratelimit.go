package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sistc/ragcore/internal/logging"
)

// defaultRateLimit is the sustained requests/second allowed per client IP
// on the answer endpoint when no explicit limit is configured.
const defaultRateLimit = 10

// defaultRateBurst is the instantaneous burst allowed per client IP when no
// explicit burst is configured.
const defaultRateBurst = 20

// bucketIdleTTL is how long an IP's token bucket survives without traffic
// before the sweeper discards it.
const bucketIdleTTL = 5 * time.Minute

// sweepEvery is the interval between sweeps of idle buckets.
const sweepEvery = time.Minute

// clientBucket pairs a token bucket with the time its IP was last seen.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle enforces a per-IP token-bucket rate limit on the answer
// endpoint. Idle buckets are swept periodically to bound memory on servers
// that see many distinct clients.
type throttle struct {
	// mu guards buckets.
	mu sync.Mutex
	// buckets maps client IP to its token-bucket state.
	buckets map[string]*clientBucket
	// rps is the sustained per-IP request rate.
	rps rate.Limit
	// burst is the per-IP instantaneous burst.
	burst int
	// log records rejections.
	log *slog.Logger
}

// newThrottle constructs a throttle and starts its background sweeper.
// The sweeper exits when the returned stop function is called.
func newThrottle(rps float64, burst int, log *slog.Logger) (*throttle, func()) {
	t := &throttle{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go t.sweepLoop(stopCh)

	return t, func() { close(stopCh) }
}

// bucketFor returns the token bucket for ip, creating one on first sight,
// and refreshes its last-seen time.
func (t *throttle) bucketFor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// sweepLoop periodically discards idle buckets until stopCh closes.
func (t *throttle) sweepLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep removes buckets idle for longer than bucketIdleTTL.
func (t *throttle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-bucketIdleTTL)
	for ip, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, ip)
		}
	}
}

// middleware enforces the rate limit before delegating to next. Rejected
// requests get 429 with a Retry-After hint and a structured WARN entry.
func (t *throttle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !t.bucketFor(ip).Allow() {
			log := logging.FromContext(r.Context())
			log.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is deliberately ignored: the server binds to localhost
// by default and a spoofable header must not widen a client's budget.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	// RemoteAddr is "host:port" for TCP connections.
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
