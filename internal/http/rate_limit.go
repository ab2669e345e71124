package httpx

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/splax/taskboard/internal/ratelimit"
)

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserRead  = 120
	rateLimitUserWrite = 60
	rateLimitWebsocket = 30
	rateLimitClientIP  = 300
)

// rateRule is one budget. Rules with different buckets on the same route
// count separately; perIP ignores the authenticated user.
type rateRule struct {
	limit  int
	window time.Duration
	bucket string
	perIP  bool
}

// withRateLimit rejects requests over the rule's budget. The key defaults to
// the authenticated user and falls back to the client IP.
func (r *Router) withRateLimit(route string, rule func(*http.Request) rateRule, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rr := rule(req)
		if rr.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := ""
		if !rr.perIP {
			key = rateLimitKeyUser(req)
		}
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		if rr.bucket != "" {
			key = rr.bucket + "|" + key
		}
		decision := r.limiter.Allow(route+"|"+key, rr.limit, rr.window)
		applyRateHeaders(w, rr.limit, decision)
		if !decision.Allowed {
			r.metrics.rateLimited(route)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func fixedRule(limit int, window time.Duration) func(*http.Request) rateRule {
	return func(*http.Request) rateRule { return rateRule{limit: limit, window: window} }
}

// clientIPRule bounds every request from one address, including ones that
// never get past authentication.
func clientIPRule(*http.Request) rateRule {
	return rateRule{limit: rateLimitClientIP, window: rateWindowDefault, perIP: true}
}

// readWriteRule counts safe methods against the read budget and everything
// else against the write budget.
func readWriteRule(req *http.Request) rateRule {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return rateRule{limit: rateLimitUserRead, window: rateWindowDefault, bucket: "read"}
	}
	return rateRule{limit: rateLimitUserWrite, window: rateWindowDefault, bucket: "write"}
}

func applyRateHeaders(w http.ResponseWriter, limit int, decision ratelimit.Decision) {
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining(limit)))
	if !decision.WindowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.WindowEnd.Unix(), 10))
	}
}

func rateLimitKeyUser(req *http.Request) string {
	if p, ok := principalFromContext(req.Context()); ok && p.ID != "" {
		return "user:" + p.ID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}
