package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/config"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic  RateLimitTier = "public"
	TierTenant  RateLimitTier = "tenant"
	TierAuth    RateLimitTier = "auth" // login, register and refresh
	TierWebhook RateLimitTier = "webhook"
)

type rateLimitTierKey struct{}

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey{}, tier)
}

func rateLimitTierFrom(ctx context.Context) RateLimitTier {
	if tier, ok := ctx.Value(rateLimitTierKey{}).(RateLimitTier); ok {
		return tier
	}
	return TierPublic
}

// WithRateLimitTierHandler marks the route's tier for RateLimit further down the chain.
func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

// RateLimit enforces a per-minute token bucket per tier and client address.
// Tenant traffic is additionally split by X-Tenant-ID. A tier with a zero
// limit is unlimited.
func RateLimit(cfg config.RateLimitConfig, env string) func(http.Handler) http.Handler {
	buckets := newBucketSet(map[RateLimitTier]int{
		TierPublic:  cfg.PublicPerMinute,
		TierTenant:  cfg.TenantPerMinute,
		TierAuth:    cfg.AuthPerMinute,
		TierWebhook: cfg.WebhookPerMinute,
	})
	proxies := parseProxyCIDRs(cfg.TrustedProxyCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			tier := rateLimitTierFrom(r.Context())
			key := clientAddr(r, proxies)
			if tier == TierTenant {
				if tenantID := r.Header.Get(TenantHeader); tenantID != "" {
					key = strings.ToUpper(tenantID) + "|" + key
				}
			}

			if wait, ok := buckets.take(tier, key, time.Now()); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(wait))
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", problem.ErrRateLimited, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	bucketIdle  = 15 * time.Minute
	sweepPeriod = 5 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds one limiter per tier and client. Idle buckets are swept on
// access instead of by a background goroutine.
type bucketSet struct {
	mu        sync.Mutex
	perMinute map[RateLimitTier]int
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newBucketSet(perMinute map[RateLimitTier]int) *bucketSet {
	return &bucketSet{perMinute: perMinute, buckets: map[string]*bucket{}, lastSweep: time.Now()}
}

// take spends one token. When none is left it reports the whole seconds
// until the next one.
func (s *bucketSet) take(tier RateLimitTier, key string, now time.Time) (int, bool) {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return 0, true
	}

	s.mu.Lock()
	if now.Sub(s.lastSweep) > sweepPeriod {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > bucketIdle {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}
	id := string(tier) + "|" + key
	b, ok := s.buckets[id]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(limit)/60), limit)}
		s.buckets[id] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return int(math.Ceil(delay.Seconds())), false
	}
	return 0, true
}

func (s *bucketSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func parseProxyCIDRs(cidrs []string) []netip.Prefix {
	var out []netip.Prefix
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(strings.TrimSpace(c)); err == nil {
			out = append(out, p.Masked())
		}
	}
	return out
}

// clientAddr is the peer address, or the first forwarded address when the
// peer is a trusted proxy.
func clientAddr(r *http.Request, proxies []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !fromTrustedProxy(peer, proxies) {
		return peer
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func fromTrustedProxy(addr string, proxies []netip.Prefix) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range proxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
