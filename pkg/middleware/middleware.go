package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/webvault/adaptive-rate-limiter/pkg/limiter"
)

// UserInfo describes the authenticated caller, resolved by the host
// application (session, JWT, whatever it uses).
type UserInfo struct {
	ID        string
	Tier      string
	Superuser bool
}

// UserFunc resolves the caller; ok is false for anonymous requests.
type UserFunc func(r *http.Request) (user UserInfo, ok bool)

// AssessFunc scores a request into a threat level.
type AssessFunc func(userAgent, queryString string) limiter.ThreatLevel

// Options configures the rate limit middleware.
type Options struct {
	Engine *limiter.Engine

	// Disabled short-circuits the middleware entirely.
	Disabled bool

	// UserFn resolves the authenticated caller. Nil means all requests are
	// anonymous.
	UserFn UserFunc

	// Assess scores threat level (default limiter.AssessThreat).
	Assess AssessFunc

	// HealthPaths are never rate limited. Defaults to /health, /healthz,
	// /readyz and /metrics.
	HealthPaths []string

	// AdminBypass exempts authenticated superusers.
	AdminBypass bool

	// TrustXForwardedFor resolves the client IP from the first
	// X-Forwarded-For entry. Enable only behind a trusted proxy.
	TrustXForwardedFor bool

	// Guard optionally backstops fail-open decisions with a coarse local
	// limiter, so a store outage does not leave traffic unbounded.
	Guard *FloodGuard

	Logger *slog.Logger
}

type denyBody struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
	Limit      int    `json:"limit"`
	Window     int    `json:"window"`
}

// New builds the middleware. Per request it resolves the identifier and
// tier, assesses threat, asks the engine for a decision, and either
// synthesizes a 429 or forwards the request with rate-limit headers
// attached.
func New(opts Options) func(next http.Handler) http.Handler {
	if opts.Assess == nil {
		opts.Assess = limiter.AssessThreat
	}
	if len(opts.HealthPaths) == 0 {
		opts.HealthPaths = []string{"/health", "/healthz", "/readyz", "/metrics"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	health := make(map[string]struct{}, len(opts.HealthPaths))
	for _, p := range opts.HealthPaths {
		health[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Disabled || opts.Engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := health[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			var user UserInfo
			var authenticated bool
			if opts.UserFn != nil {
				user, authenticated = opts.UserFn(r)
			}
			if authenticated && user.Superuser && opts.AdminBypass {
				next.ServeHTTP(w, r)
				return
			}

			identifier := resolveIdentifier(r, user, authenticated, opts.TrustXForwardedFor)
			tier := resolveTier(user, authenticated)
			threat := opts.Assess(r.UserAgent(), r.URL.RawQuery)

			dec := opts.Engine.Check(r.Context(), identifier, r.URL.Path, tier, threat)

			if dec.FailOpen && opts.Guard != nil && !opts.Guard.Allow(identifier) {
				opts.Logger.Warn("flood guard rejected request during store outage",
					"identifier", identifier, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			setRateHeaders(w.Header(), dec)

			if !dec.Allowed {
				writeDenied(w, dec)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveIdentifier picks the rate-limiting subject: user ID when
// authenticated, API key prefix when presented, client IP otherwise.
func resolveIdentifier(r *http.Request, user UserInfo, authenticated, trustXFF bool) string {
	if authenticated && user.ID != "" {
		return "user:" + user.ID
	}
	if key := apiKey(r); key != "" {
		if len(key) > 8 {
			key = key[:8]
		}
		return "api_key:" + key
	}
	return "ip:" + clientIP(r, trustXFF)
}

func resolveTier(user UserInfo, authenticated bool) string {
	if !authenticated {
		return "standard"
	}
	if user.Tier != "" {
		return user.Tier
	}
	if user.Superuser {
		return "admin"
	}
	return "standard"
}

func apiKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// clientIP resolves the peer address: first X-Forwarded-For entry when the
// proxy chain is trusted, then X-Real-IP, then the socket peer.
func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			return real
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// setRateHeaders annotates the response. Unlimited and fail-open decisions
// carry no quota metadata, so they set nothing.
func setRateHeaders(h http.Header, dec limiter.Decision) {
	if dec.Unlimited || dec.FailOpen {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.Reset, 10))
	h.Set("X-RateLimit-Algorithm", dec.Algorithm.String())
	if dec.Window > 0 {
		h.Set("X-RateLimit-Window", strconv.Itoa(int(dec.Window.Seconds())))
	}
	if dec.AdaptiveInfo != nil {
		h.Set("X-RateLimit-Adaptive", "true")
		h.Set("X-RateLimit-Threat-Level", dec.AdaptiveInfo.Threat.String())
	}
}

func writeDenied(w http.ResponseWriter, dec limiter.Decision) {
	retry := int(dec.RetryAfter.Seconds() + 0.5)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(denyBody{
		Detail:     "Rate limit exceeded",
		RetryAfter: retry,
		Limit:      dec.Limit,
		Window:     int(dec.Window.Seconds()),
	})
}
